package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/repositories"
	"github.com/bestwork/mlm-system/storage"
	"github.com/bestwork/mlm-system/utils"
)

type UpdateProfileInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	City      *string `json:"city"`
	District  *string `json:"district"`
}

type BankInfoInput struct {
	BankName string `json:"bank_name"`
	IBAN     string `json:"iban"`
}

type BeneficiaryInput struct {
	FullName string `json:"full_name"`
	Relation string `json:"relation"`
	Phone    string `json:"phone"`
}

type AddressInput struct {
	Label      string `json:"label"`
	Line       string `json:"line"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postal_code"`
	Note       string `json:"note"`
}

type MemberService interface {
	GetProfile(ctx context.Context, memberID int) (*models.Member, error)
	UpdateProfile(ctx context.Context, memberID int, input UpdateProfileInput) (*models.Member, error)
	UploadAvatar(ctx context.Context, memberID int, contentType string, file io.Reader) (*models.Member, error)
	UpdateBankInfo(ctx context.Context, memberID int, input BankInfoInput) error

	AddBeneficiary(ctx context.Context, memberID int, input BeneficiaryInput) (*models.Beneficiary, error)
	ListBeneficiaries(ctx context.Context, memberID int) ([]models.Beneficiary, error)
	RemoveBeneficiary(ctx context.Context, memberID, beneficiaryID int) error

	AddAddress(ctx context.Context, memberID int, input AddressInput) (*models.Address, error)
	ListAddresses(ctx context.Context, memberID int) ([]models.Address, error)
	RemoveAddress(ctx context.Context, memberID int, addressID string) error
}

type memberService struct {
	memberRepo      repositories.MemberRepository
	beneficiaryRepo repositories.BeneficiaryRepository
	addressRepo     repositories.AddressRepository
	uploader        storage.FileUploader
	logger          *slog.Logger
}

func NewMemberService(
	memberRepo repositories.MemberRepository,
	beneficiaryRepo repositories.BeneficiaryRepository,
	addressRepo repositories.AddressRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) MemberService {
	return &memberService{
		memberRepo:      memberRepo,
		beneficiaryRepo: beneficiaryRepo,
		addressRepo:     addressRepo,
		uploader:        uploader,
		logger:          logger,
	}
}

func (s *memberService) GetProfile(ctx context.Context, memberID int) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	s.fillAvatarURL(member)
	member.PasswordHash = ""
	return member, nil
}

func (s *memberService) UpdateProfile(ctx context.Context, memberID int, input UpdateProfileInput) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	if input.FirstName != nil {
		member.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		member.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.Phone != nil {
		phone := utils.NormalizePhone(*input.Phone)
		if len(phone) < 10 {
			return nil, ErrInvalidPhone
		}
		member.Phone = phone
	}
	if input.City != nil {
		member.City = *input.City
	}
	if input.District != nil {
		member.District = *input.District
	}

	if err := s.memberRepo.Update(ctx, member); err != nil {
		if errors.Is(err, repositories.ErrMemberPhoneConflict) {
			return nil, ErrPhoneTaken
		}
		return nil, fmt.Errorf("failed to update member: %w", err)
	}

	s.fillAvatarURL(member)
	member.PasswordHash = ""
	return member, nil
}

func (s *memberService) UploadAvatar(ctx context.Context, memberID int, contentType string, file io.Reader) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	ext := extensionForContentType(contentType)
	if ext == "" {
		return nil, fmt.Errorf("%w: unsupported avatar content type %q", ErrValidationFailed, contentType)
	}

	oldKey := member.AvatarKey
	key := fmt.Sprintf("avatars/%d%s", memberID, ext)

	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}
	if err := s.memberRepo.UpdateAvatarKey(ctx, memberID, &result.Key); err != nil {
		return nil, err
	}

	if oldKey != nil && *oldKey != result.Key {
		if err := s.uploader.Delete(ctx, *oldKey); err != nil {
			s.logger.Warn("failed to delete previous avatar",
				slog.String("key", *oldKey), slog.Any("error", err))
		}
	}

	member.AvatarKey = &result.Key
	s.fillAvatarURL(member)
	member.PasswordHash = ""
	return member, nil
}

func (s *memberService) UpdateBankInfo(ctx context.Context, memberID int, input BankInfoInput) error {
	iban := strings.ToUpper(strings.ReplaceAll(input.IBAN, " ", ""))
	if input.BankName == "" || len(iban) < 15 || len(iban) > 34 {
		return fmt.Errorf("%w: bank name and a valid IBAN are required", ErrValidationFailed)
	}
	err := s.memberRepo.UpdateBankInfo(ctx, memberID, input.BankName, iban)
	if errors.Is(err, repositories.ErrMemberNotFound) {
		return ErrMemberNotFound
	}
	return err
}

func (s *memberService) AddBeneficiary(ctx context.Context, memberID int, input BeneficiaryInput) (*models.Beneficiary, error) {
	if input.FullName == "" || input.Relation == "" {
		return nil, fmt.Errorf("%w: beneficiary full name and relation are required", ErrValidationFailed)
	}
	beneficiary := &models.Beneficiary{
		MemberID: memberID,
		FullName: input.FullName,
		Relation: input.Relation,
		Phone:    utils.NormalizePhone(input.Phone),
	}
	if err := s.beneficiaryRepo.Create(ctx, beneficiary); err != nil {
		if errors.Is(err, repositories.ErrBeneficiaryMemberInvalid) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to create beneficiary: %w", err)
	}
	return beneficiary, nil
}

func (s *memberService) ListBeneficiaries(ctx context.Context, memberID int) ([]models.Beneficiary, error) {
	return s.beneficiaryRepo.ListByMember(ctx, memberID)
}

func (s *memberService) RemoveBeneficiary(ctx context.Context, memberID, beneficiaryID int) error {
	err := s.beneficiaryRepo.Delete(ctx, memberID, beneficiaryID)
	if errors.Is(err, repositories.ErrBeneficiaryNotFound) {
		return ErrBeneficiaryNotFound
	}
	return err
}

func (s *memberService) AddAddress(ctx context.Context, memberID int, input AddressInput) (*models.Address, error) {
	if input.Line == "" || input.City == "" {
		return nil, ErrAddressIncomplete
	}
	address := &models.Address{
		Label:      input.Label,
		Line:       input.Line,
		City:       input.City,
		District:   input.District,
		PostalCode: input.PostalCode,
		Note:       input.Note,
	}
	if err := s.addressRepo.Create(ctx, memberID, address); err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}
	return address, nil
}

func (s *memberService) ListAddresses(ctx context.Context, memberID int) ([]models.Address, error) {
	return s.addressRepo.ListByMember(ctx, memberID)
}

func (s *memberService) RemoveAddress(ctx context.Context, memberID int, addressID string) error {
	err := s.addressRepo.Delete(ctx, memberID, addressID)
	if errors.Is(err, repositories.ErrAddressNotFound) {
		return ErrAddressNotFound
	}
	return err
}

func (s *memberService) fillAvatarURL(member *models.Member) {
	if member.AvatarKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*member.AvatarKey)
	member.AvatarURL = &url
}

func extensionForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ""
}
