package utils

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// DigitsOnly strips everything but decimal digits from s.
func DigitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// NormalizePhone reduces a phone number to its national significant digits:
// punctuation is stripped, then a leading 00/+ country prefix or a national
// trunk zero is removed.
func NormalizePhone(phone string) string {
	digits := DigitsOnly(phone)
	switch {
	case strings.HasPrefix(digits, "0090"):
		digits = digits[4:]
	case strings.HasPrefix(digits, "90") && len(digits) == 12:
		digits = digits[2:]
	case strings.HasPrefix(digits, "0") && len(digits) == 11:
		digits = digits[1:]
	}
	return digits
}

// ValidIdentityNumber checks an 11-digit national identity number: the first
// digit must be nonzero, the tenth digit is ((sum of odd-position digits)*7 -
// sum of even-position digits) mod 10, and the eleventh is the sum of the
// first ten digits mod 10.
func ValidIdentityNumber(identity string) bool {
	if len(identity) != 11 {
		return false
	}
	var digits [11]int
	for i, r := range identity {
		if r < '0' || r > '9' {
			return false
		}
		digits[i] = int(r - '0')
	}
	if digits[0] == 0 {
		return false
	}

	oddSum := digits[0] + digits[2] + digits[4] + digits[6] + digits[8]
	evenSum := digits[1] + digits[3] + digits[5] + digits[7]
	check10 := (oddSum*7 - evenSum) % 10
	if check10 < 0 {
		check10 += 10
	}
	if digits[9] != check10 {
		return false
	}

	total := 0
	for i := 0; i < 10; i++ {
		total += digits[i]
	}
	return digits[10] == total%10
}
