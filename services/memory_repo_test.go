package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/placement"
	"github.com/bestwork/mlm-system/repositories"
)

// fakeMemberRepo is an in-memory MemberRepository with the same conditional
// attach semantics as the Postgres implementation.
type fakeMemberRepo struct {
	mu      sync.Mutex
	nextID  int
	members map[int]*models.Member
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{nextID: 1, members: make(map[int]*models.Member)}
}

func (f *fakeMemberRepo) Create(ctx context.Context, member *models.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.members {
		if existing.Email == member.Email {
			return repositories.ErrMemberEmailConflict
		}
		if existing.Phone == member.Phone {
			return repositories.ErrMemberPhoneConflict
		}
		if existing.IdentityHash == member.IdentityHash {
			return repositories.ErrMemberIdentityConflict
		}
	}
	member.ID = f.nextID
	f.nextID++
	member.CreatedAt = time.Now()
	copied := *member
	f.members[member.ID] = &copied
	return nil
}

func (f *fakeMemberRepo) GetByID(ctx context.Context, id int) (*models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[id]
	if !ok {
		return nil, repositories.ErrMemberNotFound
	}
	copied := *member
	return &copied, nil
}

func (f *fakeMemberRepo) findBy(match func(*models.Member) bool) (*models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members {
		if match(member) {
			copied := *member
			return &copied, nil
		}
	}
	return nil, repositories.ErrMemberNotFound
}

func (f *fakeMemberRepo) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	return f.findBy(func(m *models.Member) bool { return m.Email == email })
}

func (f *fakeMemberRepo) GetByPhone(ctx context.Context, phone string) (*models.Member, error) {
	return f.findBy(func(m *models.Member) bool { return m.Phone == phone })
}

func (f *fakeMemberRepo) GetByReferralCode(ctx context.Context, code string) (*models.Member, error) {
	return f.findBy(func(m *models.Member) bool { return strings.EqualFold(m.ReferralCode, code) })
}

func (f *fakeMemberRepo) GetByIdentityHash(ctx context.Context, hash string) (*models.Member, error) {
	return f.findBy(func(m *models.Member) bool { return m.IdentityHash == hash })
}

func (f *fakeMemberRepo) Update(ctx context.Context, member *models.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[member.ID]; !ok {
		return repositories.ErrMemberNotFound
	}
	copied := *member
	f.members[member.ID] = &copied
	return nil
}

func (f *fakeMemberRepo) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[id]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	member.PasswordHash = passwordHash
	return nil
}

func (f *fakeMemberRepo) UpdateAvatarKey(ctx context.Context, id int, key *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[id]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	member.AvatarKey = key
	return nil
}

func (f *fakeMemberRepo) UpdateBankInfo(ctx context.Context, id int, bankName, iban string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[id]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	member.BankName = &bankName
	member.IBAN = &iban
	return nil
}

func (f *fakeMemberRepo) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[id]; !ok {
		return repositories.ErrMemberNotFound
	}
	delete(f.members, id)
	return nil
}

func (f *fakeMemberRepo) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.members), nil
}

func (f *fakeMemberRepo) SetPasswordResetToken(ctx context.Context, id int, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[id]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	member.PasswordResetToken = &token
	member.PasswordResetExpiresAt = &expiresAt
	return nil
}

func (f *fakeMemberRepo) GetByPasswordResetToken(ctx context.Context, token string) (*models.Member, error) {
	return f.findBy(func(m *models.Member) bool {
		return m.PasswordResetToken != nil && *m.PasswordResetToken == token
	})
}

func (f *fakeMemberRepo) ClearPasswordResetToken(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[id]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	member.PasswordResetToken = nil
	member.PasswordResetExpiresAt = nil
	return nil
}

func (f *fakeMemberRepo) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for _, member := range f.members {
		if member.PasswordResetExpiresAt != nil && member.PasswordResetExpiresAt.Before(now) {
			member.PasswordResetToken = nil
			member.PasswordResetExpiresAt = nil
			purged++
		}
	}
	return purged, nil
}

func (f *fakeMemberRepo) GetPlacementNode(ctx context.Context, id int) (*placement.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[id]
	if !ok {
		return nil, placement.ErrNodeNotFound
	}
	return &placement.Node{ID: member.ID, LeftChildID: member.LeftChildID, RightChildID: member.RightChildID}, nil
}

func (f *fakeMemberRepo) AttachChild(ctx context.Context, exec repositories.SQLExecutor, parentID int, side placement.Side, childID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, ok := f.members[parentID]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	switch side {
	case placement.SideLeft:
		if parent.LeftChildID != nil {
			return repositories.ErrPlacementSlotTaken
		}
		parent.LeftChildID = &childID
	case placement.SideRight:
		if parent.RightChildID != nil {
			return repositories.ErrPlacementSlotTaken
		}
		parent.RightChildID = &childID
	}
	return nil
}

func (f *fakeMemberRepo) SetPlacement(ctx context.Context, exec repositories.SQLExecutor, memberID int, parentID int, side placement.Side) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[memberID]
	if !ok {
		return repositories.ErrMemberNotFound
	}
	position := string(side)
	member.PlacementParentID = &parentID
	member.PlacementPosition = &position
	member.PlacementStatus = models.PlacementPlaced
	return nil
}

func (f *fakeMemberRepo) ListPendingBySponsor(ctx context.Context, sponsorID int) ([]models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []models.Member
	for _, member := range f.members {
		if member.SponsorID != nil && *member.SponsorID == sponsorID && member.PlacementStatus == models.PlacementPending {
			pending = append(pending, *member)
		}
	}
	return pending, nil
}

func (f *fakeMemberRepo) ListBySponsor(ctx context.Context, sponsorID int) ([]models.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recruits []models.Member
	for _, member := range f.members {
		if member.SponsorID != nil && *member.SponsorID == sponsorID {
			recruits = append(recruits, *member)
		}
	}
	return recruits, nil
}

func (f *fakeMemberRepo) CountBySponsor(ctx context.Context, sponsorID int) (int, error) {
	recruits, _ := f.ListBySponsor(ctx, sponsorID)
	return len(recruits), nil
}

func (f *fakeMemberRepo) CountPlacedByParentSide(ctx context.Context, parentID int, side placement.Side) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	position := string(side)
	count := 0
	var walk func(id int)
	walk = func(id int) {
		count++
		for _, member := range f.members {
			if member.PlacementParentID != nil && *member.PlacementParentID == id && member.PlacementStatus == models.PlacementPlaced {
				walk(member.ID)
			}
		}
	}
	for _, member := range f.members {
		if member.PlacementParentID != nil && *member.PlacementParentID == parentID &&
			member.PlacementPosition != nil && *member.PlacementPosition == position &&
			member.PlacementStatus == models.PlacementPlaced {
			walk(member.ID)
		}
	}
	return count, nil
}

func (f *fakeMemberRepo) CountPendingBySponsor(ctx context.Context, sponsorID int) (int, error) {
	pending, _ := f.ListPendingBySponsor(ctx, sponsorID)
	return len(pending), nil
}
