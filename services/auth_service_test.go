package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/placement"
	"github.com/bestwork/mlm-system/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Identity numbers below satisfy the two-digit checksum.
const (
	identityRoot    = "10000000146"
	identityRecruit = "10000001204"
	identityThird   = "10000001372"
)

func registerInput(email, phone, identity, sponsorCode string) RegisterInput {
	return RegisterInput{
		FirstName:            "Ayse",
		LastName:             "Yilmaz",
		Email:                email,
		Phone:                phone,
		IdentityNumber:       identity,
		Password:             "correct-horse",
		PasswordConfirm:      "correct-horse",
		City:                 "Istanbul",
		District:             "Kadikoy",
		SponsorCode:          sponsorCode,
		AgreementDistributor: true,
		AgreementKVKK:        true,
	}
}

func newAuthService(repo *fakeMemberRepo, mode PlacementMode) AuthService {
	placementSvc := NewPlacementService(nil, repo, nil, nil, testLogger())
	return NewAuthService(repo, placementSvc, nil, mode, testLogger())
}

func TestRegisterFirstMemberRootsTheTree(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)

	member, err := svc.Register(context.Background(), registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	assert.Nil(t, member.SponsorID)
	assert.Equal(t, models.PlacementPlaced, member.PlacementStatus)
	assert.Equal(t, models.RoleMember, member.Role)
	assert.True(t, strings.HasPrefix(member.ReferralCode, "TR"))
	digits := len(member.ReferralCode) - 2
	assert.True(t, digits == 8 || digits == 9, "referral code digits: %d", digits)
	assert.Empty(t, member.PasswordHash)
	// Phone stored without the trunk zero.
	assert.Equal(t, "5321234567", member.Phone)
}

func TestRegisterRequiresSponsorCodeAfterRoot(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("second@example.com", "05321234568", identityRecruit, ""))
	assert.ErrorIs(t, err, ErrSponsorCodeRequired)
}

func TestRegisterUnknownSponsor(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("second@example.com", "05321234568", identityRecruit, "TR00000000"))
	assert.ErrorIs(t, err, ErrSponsorNotFound)
}

func TestRegisterAutoModePlacesRecruit(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	root, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	recruit, err := svc.Register(ctx, registerInput("second@example.com", "05321234568", identityRecruit, root.ReferralCode))
	require.NoError(t, err)

	assert.Equal(t, models.PlacementPlaced, recruit.PlacementStatus)
	require.NotNil(t, recruit.SponsorID)
	assert.Equal(t, root.ID, *recruit.SponsorID)
	require.NotNil(t, recruit.PlacementParentID)
	assert.Equal(t, root.ID, *recruit.PlacementParentID)
	require.NotNil(t, recruit.PlacementPosition)
	assert.Equal(t, "left", *recruit.PlacementPosition)
}

func TestRegisterApprovalModeParksRecruit(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeApproval)
	ctx := context.Background()

	root, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	recruit, err := svc.Register(ctx, registerInput("second@example.com", "05321234568", identityRecruit, root.ReferralCode))
	require.NoError(t, err)

	assert.Equal(t, models.PlacementPending, recruit.PlacementStatus)
	assert.Nil(t, recruit.PlacementPosition)

	reloadedRoot, err := repo.GetByID(ctx, root.ID)
	require.NoError(t, err)
	assert.Nil(t, reloadedRoot.LeftChildID)
}

func TestRegisterValidation(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	t.Run("invalid identity number", func(t *testing.T) {
		input := registerInput("a@example.com", "05321234567", "12345678901", "")
		_, err := svc.Register(ctx, input)
		assert.ErrorIs(t, err, ErrInvalidIdentityNumber)
	})

	t.Run("password mismatch", func(t *testing.T) {
		input := registerInput("a@example.com", "05321234567", identityRoot, "")
		input.PasswordConfirm = "something-else"
		_, err := svc.Register(ctx, input)
		assert.ErrorIs(t, err, ErrPasswordMismatch)
	})

	t.Run("short password", func(t *testing.T) {
		input := registerInput("a@example.com", "05321234567", identityRoot, "")
		input.Password = "short"
		input.PasswordConfirm = "short"
		_, err := svc.Register(ctx, input)
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})

	t.Run("agreements not accepted", func(t *testing.T) {
		input := registerInput("a@example.com", "05321234567", identityRoot, "")
		input.AgreementKVKK = false
		_, err := svc.Register(ctx, input)
		assert.ErrorIs(t, err, ErrAgreementsNotAccepted)
	})

	t.Run("invalid phone", func(t *testing.T) {
		input := registerInput("a@example.com", "12345", identityRoot, "")
		_, err := svc.Register(ctx, input)
		assert.ErrorIs(t, err, ErrInvalidPhone)
	})
}

func TestRegisterDuplicateIdentity(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	root, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("other@example.com", "05321234568", identityRoot, root.ReferralCode))
	assert.ErrorIs(t, err, ErrIdentityTaken)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	root, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("root@example.com", "05321234568", identityRecruit, root.ReferralCode))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginByEmailPhoneAndReferralCode(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	root, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	for _, identifier := range []string{"root@example.com", "0532 123 45 67", root.ReferralCode} {
		member, err := svc.Login(ctx, LoginInput{Identifier: identifier, Password: "correct-horse"})
		require.NoError(t, err, "identifier %q", identifier)
		assert.Equal(t, root.ID, member.ID)
		assert.Empty(t, member.PasswordHash)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Identifier: "root@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownIdentifier(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)

	_, err := svc.Login(context.Background(), LoginInput{Identifier: "nobody@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	root, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, root.ID, "wrong", "new-password-123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, root.ID, "correct-horse", "new-password-123"))

	_, err = svc.Login(ctx, LoginInput{Identifier: "root@example.com", Password: "new-password-123"})
	assert.NoError(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	token, err := svc.GeneratePasswordResetToken(ctx, "root@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Unknown email leaks nothing.
	silent, err := svc.GeneratePasswordResetToken(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, silent)

	require.NoError(t, svc.ResetPasswordByToken(ctx, token, "after-reset-123"))

	_, err = svc.Login(ctx, LoginInput{Identifier: "root@example.com", Password: "after-reset-123"})
	assert.NoError(t, err)

	// Token is single use.
	err = svc.ResetPasswordByToken(ctx, token, "another-pass-123")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestPurgeExpiredResetTokens(t *testing.T) {
	repo := newFakeMemberRepo()
	svc := newAuthService(repo, PlacementModeAuto)
	ctx := context.Background()

	root, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	expired := time.Now().Add(-time.Minute)
	require.NoError(t, repo.SetPasswordResetToken(ctx, root.ID, "stale-token", expired))

	purged, err := svc.PurgeExpiredResetTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	err = svc.ResetPasswordByToken(ctx, "stale-token", "whatever-123")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestRegisterApprovalModeBroadcastsPendingEvent(t *testing.T) {
	repo := newFakeMemberRepo()
	hub := placement.NewHub()
	go hub.Run()

	placementSvc := NewPlacementService(nil, repo, hub, nil, testLogger())
	svc := NewAuthService(repo, placementSvc, nil, PlacementModeApproval, testLogger())
	ctx := context.Background()

	sponsor, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	client := &placement.Client{Hub: hub, Send: make(chan []byte, 1), Room: placement.MemberRoom(sponsor.ID)}
	hub.Register <- client
	// The hub handles registrations one at a time, so once this second client
	// is accepted the first is in its room.
	hub.Register <- &placement.Client{Hub: hub, Send: make(chan []byte, 1), Room: placement.MemberRoom(0)}

	recruit, err := svc.Register(ctx, registerInput("recruit@example.com", "05331234567", identityRecruit, sponsor.ReferralCode))
	require.NoError(t, err)
	assert.Equal(t, models.PlacementPending, recruit.PlacementStatus)

	select {
	case raw := <-client.Send:
		var msg placement.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, placement.EventPlacementPending, msg.Type)
		payload, ok := msg.Payload.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(recruit.ID), payload["member_id"])
	case <-time.After(time.Second):
		t.Fatal("no pending event reached the sponsor's room")
	}
}

func TestRegisterAutoModeRollsBackWhenPlacementFails(t *testing.T) {
	inner := newFakeMemberRepo()
	repo := &lostSlotRepo{fakeMemberRepo: inner, failures: maxPlacementAttempts + 1}
	placementSvc := NewPlacementService(nil, repo, nil, nil, testLogger())
	svc := NewAuthService(repo, placementSvc, nil, PlacementModeAuto, testLogger())
	ctx := context.Background()

	sponsor, err := svc.Register(ctx, registerInput("root@example.com", "05321234567", identityRoot, ""))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("recruit@example.com", "05331234567", identityRecruit, sponsor.ReferralCode))
	require.ErrorIs(t, err, ErrPlacementConflict)

	// The failed registration must not leave a half-created member behind.
	_, err = inner.GetByEmail(ctx, "recruit@example.com")
	assert.ErrorIs(t, err, repositories.ErrMemberNotFound)
}
