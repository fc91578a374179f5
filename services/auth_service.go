package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/repositories"
	"github.com/bestwork/mlm-system/utils"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength    = 8
	referralCodePrefix   = "TR"
	referralCodeAttempts = 50
	resetTokenLength     = 32
	resetTokenDuration   = 1 * time.Hour
)

type RegisterInput struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	IdentityNumber  string `json:"identity_number"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	MembershipType  string `json:"membership_type"`
	City            string `json:"city"`
	District        string `json:"district"`
	SponsorCode     string `json:"sponsor_code"`

	AgreementDistributor bool `json:"agreement_distributor"`
	AgreementKVKK        bool `json:"agreement_kvkk"`
}

type LoginInput struct {
	// Identifier is an email address, a phone number, or a referral code.
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*models.Member, error)
	Login(ctx context.Context, input LoginInput) (*models.Member, error)
	ChangePassword(ctx context.Context, memberID int, currentPassword, newPassword string) error
	GeneratePasswordResetToken(ctx context.Context, email string) (string, error)
	ResetPasswordByToken(ctx context.Context, token, newPassword string) error
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}

type authService struct {
	memberRepo    repositories.MemberRepository
	placementSvc  PlacementService
	emailSvc      *EmailService
	placementMode PlacementMode
	logger        *slog.Logger
}

func NewAuthService(
	memberRepo repositories.MemberRepository,
	placementSvc PlacementService,
	emailSvc *EmailService,
	placementMode PlacementMode,
	logger *slog.Logger,
) AuthService {
	return &authService{
		memberRepo:    memberRepo,
		placementSvc:  placementSvc,
		emailSvc:      emailSvc,
		placementMode: placementMode,
		logger:        logger,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*models.Member, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.SponsorCode = strings.ToUpper(strings.TrimSpace(input.SponsorCode))

	if input.FirstName == "" || input.LastName == "" || input.Email == "" {
		return nil, fmt.Errorf("%w: first name, last name and email are required", ErrValidationFailed)
	}
	if !utils.IsValidEmail(input.Email) {
		return nil, fmt.Errorf("%w: invalid email address", ErrValidationFailed)
	}
	if !input.AgreementDistributor || !input.AgreementKVKK {
		return nil, ErrAgreementsNotAccepted
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if input.Password != input.PasswordConfirm {
		return nil, ErrPasswordMismatch
	}

	phone := utils.NormalizePhone(input.Phone)
	if len(phone) < 10 {
		return nil, ErrInvalidPhone
	}

	identity := utils.DigitsOnly(input.IdentityNumber)
	if !utils.ValidIdentityNumber(identity) {
		return nil, ErrInvalidIdentityNumber
	}
	identityHash := hashIdentityNumber(identity)

	if _, err := s.memberRepo.GetByIdentityHash(ctx, identityHash); err == nil {
		return nil, ErrIdentityTaken
	} else if !errors.Is(err, repositories.ErrMemberNotFound) {
		return nil, fmt.Errorf("failed to check identity uniqueness: %w", err)
	}

	// The first registrant roots the tree and needs no sponsor; everyone after
	// that must present a valid sponsor code.
	total, err := s.memberRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}
	requiresSponsor := total > 0

	var sponsor *models.Member
	if requiresSponsor {
		if input.SponsorCode == "" {
			return nil, ErrSponsorCodeRequired
		}
		sponsor, err = s.memberRepo.GetByReferralCode(ctx, input.SponsorCode)
		if err != nil {
			if errors.Is(err, repositories.ErrMemberNotFound) {
				return nil, ErrSponsorNotFound
			}
			return nil, fmt.Errorf("failed to look up sponsor: %w", err)
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	referralCode, err := s.generateReferralCode(ctx)
	if err != nil {
		return nil, err
	}

	membershipType := input.MembershipType
	if membershipType == "" {
		membershipType = "individual"
	}

	member := &models.Member{
		FirstName:       input.FirstName,
		LastName:        input.LastName,
		Email:           input.Email,
		Phone:           phone,
		IdentityHash:    identityHash,
		PasswordHash:    string(hashedPassword),
		Role:            models.RoleMember,
		ReferralCode:    referralCode,
		MembershipType:  membershipType,
		City:            input.City,
		District:        input.District,
		PlacementStatus: models.PlacementPlaced,
	}

	if sponsor != nil {
		member.SponsorID = &sponsor.ID
		member.PlacementStatus = models.PlacementPending
		if s.placementMode == PlacementModeApproval {
			// Parked under the sponsor until the sponsor approves a side.
			member.PlacementParentID = &sponsor.ID
		}
	}

	if err := s.memberRepo.Create(ctx, member); err != nil {
		switch {
		case errors.Is(err, repositories.ErrMemberEmailConflict):
			return nil, ErrEmailTaken
		case errors.Is(err, repositories.ErrMemberPhoneConflict):
			return nil, ErrPhoneTaken
		case errors.Is(err, repositories.ErrMemberIdentityConflict):
			return nil, ErrIdentityTaken
		}
		return nil, fmt.Errorf("failed to create member: %w", err)
	}

	if sponsor != nil && s.placementMode == PlacementModeAuto {
		if _, err := s.placementSvc.Place(ctx, member.ID, sponsor.ID); err != nil {
			// Roll the half-registered member back so a failed registration
			// leaves nothing behind.
			if delErr := s.memberRepo.Delete(ctx, member.ID); delErr != nil {
				s.logger.Warn("failed to remove unplaced member",
					slog.Int("member_id", member.ID), slog.Any("error", delErr))
			}
			return nil, err
		}
		reloaded, err := s.memberRepo.GetByID(ctx, member.ID)
		if err == nil {
			member = reloaded
		}
	}

	if sponsor != nil && s.placementMode == PlacementModeApproval {
		s.placementSvc.NotifyPending(sponsor.ID, member)
	}

	if s.emailSvc != nil {
		if err := s.emailSvc.SendWelcomeEmail(member.Email, member.ReferralCode); err != nil {
			s.logger.Warn("failed to send welcome email",
				slog.String("email", member.Email), slog.Any("error", err))
		}
	}

	member.PasswordHash = ""
	return member, nil
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.Member, error) {
	member, err := s.resolveByIdentifier(ctx, input.Identifier)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to resolve member: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(input.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	member.PasswordHash = ""
	return member, nil
}

// resolveByIdentifier mirrors the login form: an email if it contains '@', a
// phone number if it has enough digits, otherwise a referral code.
func (s *authService) resolveByIdentifier(ctx context.Context, identifier string) (*models.Member, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, repositories.ErrMemberNotFound
	}

	if strings.Contains(identifier, "@") {
		return s.memberRepo.GetByEmail(ctx, strings.ToLower(identifier))
	}

	if phone := utils.NormalizePhone(identifier); len(phone) >= 10 {
		if member, err := s.memberRepo.GetByPhone(ctx, phone); err == nil {
			return member, nil
		} else if !errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, err
		}
	}

	return s.memberRepo.GetByReferralCode(ctx, strings.ToUpper(identifier))
}

func (s *authService) ChangePassword(ctx context.Context, memberID int, currentPassword, newPassword string) error {
	member, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.memberRepo.UpdatePassword(ctx, memberID, string(hashed))
}

func (s *authService) GeneratePasswordResetToken(ctx context.Context, email string) (string, error) {
	member, err := s.memberRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		// Do not reveal whether the email is registered.
		return "", nil
	}

	token, err := generateSecureToken(resetTokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	if err := s.memberRepo.SetPasswordResetToken(ctx, member.ID, token, time.Now().Add(resetTokenDuration)); err != nil {
		return "", err
	}

	if s.emailSvc != nil {
		if err := s.emailSvc.SendPasswordResetEmail(member.Email, token); err != nil {
			s.logger.Warn("failed to send password reset email",
				slog.String("email", member.Email), slog.Any("error", err))
		}
	}
	return token, nil
}

func (s *authService) ResetPasswordByToken(ctx context.Context, token, newPassword string) error {
	member, err := s.memberRepo.GetByPasswordResetToken(ctx, token)
	if err != nil {
		return ErrResetTokenInvalid
	}
	if member.PasswordResetExpiresAt == nil || member.PasswordResetExpiresAt.Before(time.Now()) {
		return ErrResetTokenInvalid
	}
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.memberRepo.UpdatePassword(ctx, member.ID, string(hashed)); err != nil {
		return err
	}
	return s.memberRepo.ClearPasswordResetToken(ctx, member.ID)
}

func (s *authService) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	return s.memberRepo.PurgeExpiredResetTokens(ctx, time.Now())
}

// generateReferralCode produces the member's public ID: the country prefix
// followed by 8 or 9 random digits, retried until it does not collide.
func (s *authService) generateReferralCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		digitsCount := 8
		if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 1 {
			digitsCount = 9
		}

		var sb strings.Builder
		sb.WriteString(referralCodePrefix)
		for i := 0; i < digitsCount; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(10))
			if err != nil {
				return "", fmt.Errorf("failed to generate referral code: %w", err)
			}
			sb.WriteByte(byte('0' + n.Int64()))
		}
		code := sb.String()

		_, err := s.memberRepo.GetByReferralCode(ctx, code)
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check referral code uniqueness: %w", err)
		}
	}
	return "", ErrReferralCodeExhausted
}

func generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func hashIdentityNumber(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}
