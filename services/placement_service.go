package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/placement"
	"github.com/bestwork/mlm-system/repositories"
)

// PlacementMode selects which of the two registration flows is active. The two
// policies are mutually exclusive; a deployment runs exactly one.
type PlacementMode string

const (
	// PlacementModeAuto attaches new members at registration time, into the
	// slot chosen by the breadth-first resolver.
	PlacementModeAuto PlacementMode = "auto"
	// PlacementModeApproval parks new members as pending; the sponsor later
	// approves them into an explicit side of the sponsor's own node.
	PlacementModeApproval PlacementMode = "approval"
)

// maxPlacementAttempts bounds the resolve-and-attach retry loop under slot
// contention. Each retry re-runs the BFS against current data, so losing a
// race converges to the next open slot.
const maxPlacementAttempts = 5

// DownlineNode is one node of the rendered downline tree.
type DownlineNode struct {
	MemberID     int                    `json:"member_id"`
	Name         string                 `json:"name"`
	ReferralCode string                 `json:"referral_code"`
	Depth        int                    `json:"depth"`
	Position     *string                `json:"position,omitempty"`
	Status       models.PlacementStatus `json:"status"`
	Left         *DownlineNode          `json:"left,omitempty"`
	Right        *DownlineNode          `json:"right,omitempty"`
}

// PlacementMailer is the slice of the email service the placement flow needs.
type PlacementMailer interface {
	SendPlacementConfirmedEmail(memberEmail, sponsorName, position string) error
}

type PlacementService interface {
	// FindOpenSlot resolves the first open slot under the sponsor without
	// writing anything.
	FindOpenSlot(ctx context.Context, sponsorID int) (placement.Slot, error)
	// Place resolves a slot and performs the two placement writes atomically,
	// retrying the full cycle when the slot is lost to a concurrent
	// registration.
	Place(ctx context.Context, memberID, sponsorID int) (placement.Slot, error)
	// Approve attaches a pending member to an explicit side of the sponsor's
	// own node (approval mode).
	Approve(ctx context.Context, sponsorID, memberID int, side placement.Side) error
	// NotifyPending announces a recruit parked for approval to the sponsor's
	// room so an open dashboard shows the waiting member immediately.
	NotifyPending(sponsorID int, member *models.Member)
	ListPending(ctx context.Context, sponsorID int) ([]models.Member, error)
	// ListDirects returns everyone the member personally sponsored, regardless
	// of where the resolver placed them in the tree.
	ListDirects(ctx context.Context, sponsorID int) ([]models.Member, error)
	Downline(ctx context.Context, rootID, maxDepth int) (*DownlineNode, error)
}

type placementService struct {
	db         *sql.DB
	memberRepo repositories.MemberRepository
	hub        *placement.Hub
	mailer     PlacementMailer
	logger     *slog.Logger
}

func NewPlacementService(
	db *sql.DB,
	memberRepo repositories.MemberRepository,
	hub *placement.Hub,
	mailer PlacementMailer,
	logger *slog.Logger,
) PlacementService {
	return &placementService{
		db:         db,
		memberRepo: memberRepo,
		hub:        hub,
		mailer:     mailer,
		logger:     logger,
	}
}

// repoNodeLookup adapts the member repository to the resolver's read interface.
type repoNodeLookup struct {
	repo repositories.MemberRepository
}

func (l repoNodeLookup) GetNode(ctx context.Context, id int) (*placement.Node, error) {
	return l.repo.GetPlacementNode(ctx, id)
}

func (s *placementService) FindOpenSlot(ctx context.Context, sponsorID int) (placement.Slot, error) {
	slot, err := placement.FindOpenSlot(ctx, repoNodeLookup{repo: s.memberRepo}, sponsorID)
	if err != nil {
		switch {
		case errors.Is(err, placement.ErrNodeNotFound):
			return placement.Slot{}, ErrSponsorNotFound
		case errors.Is(err, placement.ErrNoSlotAvailable):
			return placement.Slot{}, ErrNoSlotAvailable
		}
		return placement.Slot{}, fmt.Errorf("failed to resolve placement slot: %w", err)
	}
	return slot, nil
}

func (s *placementService) Place(ctx context.Context, memberID, sponsorID int) (placement.Slot, error) {
	var lastErr error

	for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
		slot, err := s.FindOpenSlot(ctx, sponsorID)
		if err != nil {
			return placement.Slot{}, err
		}

		err = s.attach(ctx, memberID, slot)
		if err == nil {
			s.logger.Info("member placed",
				slog.Int("member_id", memberID),
				slog.Int("parent_id", slot.ParentID),
				slog.String("side", string(slot.Side)),
				slog.Int("attempt", attempt+1),
			)
			s.notifyPlaced(sponsorID, memberID, slot)
			return slot, nil
		}
		if !errors.Is(err, repositories.ErrPlacementSlotTaken) {
			return placement.Slot{}, err
		}

		// Lost the slot to a concurrent registration; resolve again.
		lastErr = err
		s.logger.Warn("placement slot contention, retrying",
			slog.Int("member_id", memberID),
			slog.Int("parent_id", slot.ParentID),
			slog.String("side", string(slot.Side)),
		)
	}

	return placement.Slot{}, fmt.Errorf("%w: %w", ErrPlacementConflict, lastErr)
}

// attach performs both placement writes in one transaction: the parent's child
// pointer (conditionally, first writer wins) and the member's own placement
// fields.
func (s *placementService) attach(ctx context.Context, memberID int, slot placement.Slot) error {
	if s.db == nil {
		// No transaction manager wired (in-memory repositories); the repo-level
		// conditional update still guarantees single-writer slots.
		if err := s.memberRepo.AttachChild(ctx, nil, slot.ParentID, slot.Side, memberID); err != nil {
			return err
		}
		return s.memberRepo.SetPlacement(ctx, nil, memberID, slot.ParentID, slot.Side)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin placement transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.memberRepo.AttachChild(ctx, tx, slot.ParentID, slot.Side, memberID); err != nil {
		return err
	}
	if err := s.memberRepo.SetPlacement(ctx, tx, memberID, slot.ParentID, slot.Side); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit placement transaction: %w", err)
	}
	return nil
}

func (s *placementService) Approve(ctx context.Context, sponsorID, memberID int, side placement.Side) error {
	if !placement.ValidSide(side) {
		return ErrInvalidSide
	}

	member, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to load pending member %d: %w", memberID, err)
	}

	if member.PlacementStatus != models.PlacementPending {
		return ErrPlacementNotPending
	}
	if member.PlacementParentID == nil || *member.PlacementParentID != sponsorID {
		return ErrPlacementForbidden
	}

	err = s.attach(ctx, memberID, placement.Slot{ParentID: sponsorID, Side: side})
	if err != nil {
		if errors.Is(err, repositories.ErrPlacementSlotTaken) {
			return ErrSlotOccupied
		}
		return err
	}

	s.logger.Info("pending member approved",
		slog.Int("member_id", memberID),
		slog.Int("sponsor_id", sponsorID),
		slog.String("side", string(side)),
	)
	s.notifyPlaced(sponsorID, memberID, placement.Slot{ParentID: sponsorID, Side: side})

	if s.mailer != nil {
		sponsorName := ""
		if sponsor, err := s.memberRepo.GetByID(ctx, sponsorID); err == nil {
			sponsorName = sponsor.FirstName + " " + sponsor.LastName
		}
		if err := s.mailer.SendPlacementConfirmedEmail(member.Email, sponsorName, string(side)); err != nil {
			s.logger.Warn("failed to send placement confirmation email",
				slog.String("email", member.Email), slog.Any("error", err))
		}
	}
	return nil
}

// NotifyPending broadcasts a PLACEMENT_PENDING event to the sponsor's room.
// Best effort; a nil hub is skipped in tests.
func (s *placementService) NotifyPending(sponsorID int, member *models.Member) {
	if s.hub == nil {
		return
	}
	payload := map[string]interface{}{
		"member_id":     member.ID,
		"name":          member.FirstName + " " + member.LastName,
		"referral_code": member.ReferralCode,
	}
	s.hub.BroadcastToRoom(placement.MemberRoom(sponsorID), placement.EventPlacementPending, payload)
}

// notifyPlaced pushes the confirmed slot to the sponsor's and parent's rooms
// so open dashboards update live. Best effort; a nil hub is skipped in tests.
func (s *placementService) notifyPlaced(sponsorID, memberID int, slot placement.Slot) {
	if s.hub == nil {
		return
	}
	payload := map[string]interface{}{
		"member_id": memberID,
		"parent_id": slot.ParentID,
		"side":      slot.Side,
	}
	s.hub.BroadcastToRoom(placement.MemberRoom(sponsorID), placement.EventPlacementConfirmed, payload)
	if slot.ParentID != sponsorID {
		s.hub.BroadcastToRoom(placement.MemberRoom(slot.ParentID), placement.EventPlacementConfirmed, payload)
	}
}

func (s *placementService) ListPending(ctx context.Context, sponsorID int) ([]models.Member, error) {
	members, err := s.memberRepo.ListPendingBySponsor(ctx, sponsorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending placements: %w", err)
	}
	return members, nil
}

func (s *placementService) ListDirects(ctx context.Context, sponsorID int) ([]models.Member, error) {
	members, err := s.memberRepo.ListBySponsor(ctx, sponsorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list direct sponsorships: %w", err)
	}
	return members, nil
}

func (s *placementService) Downline(ctx context.Context, rootID, maxDepth int) (*DownlineNode, error) {
	root, err := s.memberRepo.GetByID(ctx, rootID)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return s.buildDownline(ctx, root, 0, maxDepth)
}

func (s *placementService) buildDownline(ctx context.Context, member *models.Member, depth, maxDepth int) (*DownlineNode, error) {
	node := &DownlineNode{
		MemberID:     member.ID,
		Name:         member.FirstName + " " + member.LastName,
		ReferralCode: member.ReferralCode,
		Depth:        depth,
		Position:     member.PlacementPosition,
		Status:       member.PlacementStatus,
	}
	if depth >= maxDepth {
		return node, nil
	}

	load := func(id *int) (*DownlineNode, error) {
		if id == nil {
			return nil, nil
		}
		child, err := s.memberRepo.GetByID(ctx, *id)
		if err != nil {
			if errors.Is(err, repositories.ErrMemberNotFound) {
				// Dangling pointer; render the branch as empty.
				return nil, nil
			}
			return nil, err
		}
		return s.buildDownline(ctx, child, depth+1, maxDepth)
	}

	left, err := load(member.LeftChildID)
	if err != nil {
		return nil, err
	}
	right, err := load(member.RightChildID)
	if err != nil {
		return nil, err
	}
	node.Left = left
	node.Right = right
	return node, nil
}
