package services

import "errors"

// Shared errors used across services and the HTTP mapping layer.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Validation and business rules
	ErrValidationFailed      = errors.New("validation failed")
	ErrPasswordTooShort      = errors.New("password is too short")
	ErrPasswordMismatch      = errors.New("passwords do not match")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidIdentityNumber = errors.New("identity number failed validation")
	ErrInvalidPhone          = errors.New("phone number is invalid")
	ErrAgreementsNotAccepted = errors.New("distributor and data-processing agreements must be accepted")
	ErrSponsorCodeRequired   = errors.New("sponsor code is required")
	ErrInvalidSide           = errors.New("placement side must be left or right")
	ErrAddressIncomplete     = errors.New("delivery address is incomplete")
	ErrCartEmpty             = errors.New("cart is empty")
	ErrQuantityInvalid       = errors.New("quantity must be positive")

	// Conflicts
	ErrEmailTaken            = errors.New("email address is already in use")
	ErrPhoneTaken            = errors.New("phone number is already in use")
	ErrIdentityTaken         = errors.New("identity number is already registered")
	ErrReferralCodeExhausted = errors.New("failed to generate a unique referral code")

	// Placement
	ErrSponsorNotFound     = errors.New("sponsor not found for the given code")
	ErrNoSlotAvailable     = errors.New("no placement slot available under this sponsor")
	ErrPlacementConflict   = errors.New("placement slot contention, retries exhausted")
	ErrPlacementNotPending = errors.New("member is already placed")
	ErrPlacementForbidden  = errors.New("member is not pending under this sponsor")
	ErrSlotOccupied        = errors.New("requested placement side is already occupied")

	// Authentication and authorization
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
	ErrResetTokenInvalid  = errors.New("invalid or expired password reset token")

	// Entity lookups
	ErrMemberNotFound      = errors.New("member not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrAddressNotFound     = errors.New("address not found")
	ErrBeneficiaryNotFound = errors.New("beneficiary not found")
)
