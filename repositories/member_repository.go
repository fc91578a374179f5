package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/placement"
	"github.com/lib/pq"
)

var (
	ErrMemberNotFound             = errors.New("member not found")
	ErrMemberEmailConflict        = errors.New("member email conflict")
	ErrMemberPhoneConflict        = errors.New("member phone conflict")
	ErrMemberIdentityConflict     = errors.New("member identity number conflict")
	ErrMemberReferralCodeConflict = errors.New("member referral code conflict")

	// ErrPlacementSlotTaken signals that the conditional child-pointer update
	// matched no row: another registration won the slot first.
	ErrPlacementSlotTaken = errors.New("placement slot already taken")
)

const memberColumns = `
	id, first_name, last_name, email, phone, identity_hash, password_hash, role,
	referral_code, membership_type, city, district,
	sponsor_id, placement_parent_id, placement_position, placement_status,
	left_child_id, right_child_id,
	bank_name, iban, avatar_key,
	password_reset_token, password_reset_expires_at, created_at`

type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id int) (*models.Member, error)
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
	GetByPhone(ctx context.Context, phone string) (*models.Member, error)
	GetByReferralCode(ctx context.Context, code string) (*models.Member, error)
	GetByIdentityHash(ctx context.Context, hash string) (*models.Member, error)
	Update(ctx context.Context, member *models.Member) error
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	UpdateAvatarKey(ctx context.Context, id int, key *string) error
	UpdateBankInfo(ctx context.Context, id int, bankName, iban string) error
	// Delete removes a member row. Used to roll back a registration whose
	// placement could not be completed.
	Delete(ctx context.Context, id int) error
	Count(ctx context.Context) (int, error)

	SetPasswordResetToken(ctx context.Context, id int, token string, expiresAt time.Time) error
	GetByPasswordResetToken(ctx context.Context, token string) (*models.Member, error)
	ClearPasswordResetToken(ctx context.Context, id int) error
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)

	// GetPlacementNode is the point lookup the resolver issues per visited
	// node: just the two child pointers.
	GetPlacementNode(ctx context.Context, id int) (*placement.Node, error)
	// AttachChild sets the given child pointer only if it is still empty.
	// Returns ErrPlacementSlotTaken when the slot was filled concurrently.
	AttachChild(ctx context.Context, exec SQLExecutor, parentID int, side placement.Side, childID int) error
	// SetPlacement records the member's final position and flips it to placed.
	SetPlacement(ctx context.Context, exec SQLExecutor, memberID int, parentID int, side placement.Side) error

	ListPendingBySponsor(ctx context.Context, sponsorID int) ([]models.Member, error)
	ListBySponsor(ctx context.Context, sponsorID int) ([]models.Member, error)
	CountBySponsor(ctx context.Context, sponsorID int) (int, error)
	CountPlacedByParentSide(ctx context.Context, parentID int, side placement.Side) (int, error)
	CountPendingBySponsor(ctx context.Context, sponsorID int) (int, error)
}

type postgresMemberRepository struct {
	db *sql.DB
}

func NewPostgresMemberRepository(db *sql.DB) MemberRepository {
	return &postgresMemberRepository{db: db}
}

func (r *postgresMemberRepository) Create(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (
			first_name, last_name, email, phone, identity_hash, password_hash, role,
			referral_code, membership_type, city, district,
			sponsor_id, placement_parent_id, placement_position, placement_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		member.FirstName,
		member.LastName,
		member.Email,
		member.Phone,
		member.IdentityHash,
		member.PasswordHash,
		member.Role,
		member.ReferralCode,
		member.MembershipType,
		member.City,
		member.District,
		member.SponsorID,
		member.PlacementParentID,
		member.PlacementPosition,
		member.PlacementStatus,
	).Scan(&member.ID, &member.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "members_email_key":
				return ErrMemberEmailConflict
			case "members_phone_key":
				return ErrMemberPhoneConflict
			case "members_identity_hash_key":
				return ErrMemberIdentityConflict
			case "members_referral_code_key":
				return ErrMemberReferralCodeConflict
			}
		}
		return err
	}
	return nil
}

func (r *postgresMemberRepository) GetByID(ctx context.Context, id int) (*models.Member, error) {
	query := `SELECT` + memberColumns + ` FROM members WHERE id = $1`
	return r.scanMember(ctx, query, id)
}

func (r *postgresMemberRepository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	query := `SELECT` + memberColumns + ` FROM members WHERE email = $1`
	return r.scanMember(ctx, query, email)
}

func (r *postgresMemberRepository) GetByPhone(ctx context.Context, phone string) (*models.Member, error) {
	query := `SELECT` + memberColumns + ` FROM members WHERE phone = $1`
	return r.scanMember(ctx, query, phone)
}

func (r *postgresMemberRepository) GetByReferralCode(ctx context.Context, code string) (*models.Member, error) {
	query := `SELECT` + memberColumns + ` FROM members WHERE referral_code = $1`
	return r.scanMember(ctx, query, code)
}

func (r *postgresMemberRepository) GetByIdentityHash(ctx context.Context, hash string) (*models.Member, error) {
	query := `SELECT` + memberColumns + ` FROM members WHERE identity_hash = $1`
	return r.scanMember(ctx, query, hash)
}

func (r *postgresMemberRepository) Update(ctx context.Context, member *models.Member) error {
	query := `
		UPDATE members SET
			first_name = $1,
			last_name = $2,
			email = $3,
			phone = $4,
			membership_type = $5,
			city = $6,
			district = $7,
			password_hash = $8,
			password_reset_token = $9,
			password_reset_expires_at = $10
		WHERE id = $11`

	result, err := r.db.ExecContext(ctx, query,
		member.FirstName,
		member.LastName,
		member.Email,
		member.Phone,
		member.MembershipType,
		member.City,
		member.District,
		member.PasswordHash,
		member.PasswordResetToken,
		member.PasswordResetExpiresAt,
		member.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "members_email_key":
				return ErrMemberEmailConflict
			case "members_phone_key":
				return ErrMemberPhoneConflict
			}
		}
		return err
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) UpdateAvatarKey(ctx context.Context, id int, key *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members SET avatar_key = $1 WHERE id = $2`, key, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) UpdateBankInfo(ctx context.Context, id int, bankName, iban string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members SET bank_name = $1, iban = $2 WHERE id = $3`, bankName, iban, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete member %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&count)
	return count, err
}

func (r *postgresMemberRepository) SetPasswordResetToken(ctx context.Context, id int, token string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members SET password_reset_token = $1, password_reset_expires_at = $2 WHERE id = $3`,
		token, expiresAt, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) GetByPasswordResetToken(ctx context.Context, token string) (*models.Member, error) {
	query := `SELECT` + memberColumns + ` FROM members WHERE password_reset_token = $1`
	return r.scanMember(ctx, query, token)
}

func (r *postgresMemberRepository) ClearPasswordResetToken(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members SET password_reset_token = NULL, password_reset_expires_at = NULL WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE members
		 SET password_reset_token = NULL, password_reset_expires_at = NULL
		 WHERE password_reset_token IS NOT NULL AND password_reset_expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *postgresMemberRepository) GetPlacementNode(ctx context.Context, id int) (*placement.Node, error) {
	node := &placement.Node{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, left_child_id, right_child_id FROM members WHERE id = $1`, id).
		Scan(&node.ID, &node.LeftChildID, &node.RightChildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, placement.ErrNodeNotFound
		}
		return nil, err
	}
	return node, nil
}

func (r *postgresMemberRepository) AttachChild(ctx context.Context, exec SQLExecutor, parentID int, side placement.Side, childID int) error {
	if exec == nil {
		exec = r.db
	}

	// The WHERE clause on the child pointer is the concurrency guard: the
	// update succeeds for exactly one writer per slot, ever.
	var query string
	switch side {
	case placement.SideLeft:
		query = `UPDATE members SET left_child_id = $1 WHERE id = $2 AND left_child_id IS NULL`
	case placement.SideRight:
		query = `UPDATE members SET right_child_id = $1 WHERE id = $2 AND right_child_id IS NULL`
	default:
		return fmt.Errorf("invalid placement side: %q", side)
	}

	result, err := exec.ExecContext(ctx, query, childID, parentID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrPlacementSlotTaken)
}

func (r *postgresMemberRepository) SetPlacement(ctx context.Context, exec SQLExecutor, memberID int, parentID int, side placement.Side) error {
	if exec == nil {
		exec = r.db
	}
	result, err := exec.ExecContext(ctx,
		`UPDATE members
		 SET placement_parent_id = $1, placement_position = $2, placement_status = $3
		 WHERE id = $4`,
		parentID, string(side), models.PlacementPlaced, memberID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMemberNotFound)
}

func (r *postgresMemberRepository) ListPendingBySponsor(ctx context.Context, sponsorID int) ([]models.Member, error) {
	query := `SELECT` + memberColumns + `
		FROM members
		WHERE placement_parent_id = $1 AND placement_status = $2
		ORDER BY created_at ASC`
	return r.scanMembers(ctx, query, sponsorID, models.PlacementPending)
}

func (r *postgresMemberRepository) ListBySponsor(ctx context.Context, sponsorID int) ([]models.Member, error) {
	query := `SELECT` + memberColumns + `
		FROM members
		WHERE sponsor_id = $1
		ORDER BY created_at DESC`
	return r.scanMembers(ctx, query, sponsorID)
}

func (r *postgresMemberRepository) CountBySponsor(ctx context.Context, sponsorID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE sponsor_id = $1`, sponsorID).Scan(&count)
	return count, err
}

// CountPlacedByParentSide counts the entire leg: the direct child on the given
// side plus everyone placed below it.
func (r *postgresMemberRepository) CountPlacedByParentSide(ctx context.Context, parentID int, side placement.Side) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`WITH RECURSIVE leg AS (
			SELECT id FROM members
			WHERE placement_parent_id = $1 AND placement_position = $2 AND placement_status = $3
			UNION ALL
			SELECT m.id FROM members m
			JOIN leg ON m.placement_parent_id = leg.id
			WHERE m.placement_status = $3
		)
		SELECT COUNT(*) FROM leg`,
		parentID, string(side), models.PlacementPlaced).Scan(&count)
	return count, err
}

func (r *postgresMemberRepository) CountPendingBySponsor(ctx context.Context, sponsorID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE placement_parent_id = $1 AND placement_status = $2`,
		sponsorID, models.PlacementPending).Scan(&count)
	return count, err
}

func (r *postgresMemberRepository) scanMember(ctx context.Context, query string, args ...interface{}) (*models.Member, error) {
	member := &models.Member{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&member.ID,
		&member.FirstName,
		&member.LastName,
		&member.Email,
		&member.Phone,
		&member.IdentityHash,
		&member.PasswordHash,
		&member.Role,
		&member.ReferralCode,
		&member.MembershipType,
		&member.City,
		&member.District,
		&member.SponsorID,
		&member.PlacementParentID,
		&member.PlacementPosition,
		&member.PlacementStatus,
		&member.LeftChildID,
		&member.RightChildID,
		&member.BankName,
		&member.IBAN,
		&member.AvatarKey,
		&member.PasswordResetToken,
		&member.PasswordResetExpiresAt,
		&member.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

func (r *postgresMemberRepository) scanMembers(ctx context.Context, query string, args ...interface{}) ([]models.Member, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]models.Member, 0)
	for rows.Next() {
		var member models.Member
		scanErr := rows.Scan(
			&member.ID,
			&member.FirstName,
			&member.LastName,
			&member.Email,
			&member.Phone,
			&member.IdentityHash,
			&member.PasswordHash,
			&member.Role,
			&member.ReferralCode,
			&member.MembershipType,
			&member.City,
			&member.District,
			&member.SponsorID,
			&member.PlacementParentID,
			&member.PlacementPosition,
			&member.PlacementStatus,
			&member.LeftChildID,
			&member.RightChildID,
			&member.BankName,
			&member.IBAN,
			&member.AvatarKey,
			&member.PasswordResetToken,
			&member.PasswordResetExpiresAt,
			&member.CreatedAt,
		)
		if scanErr != nil {
			return nil, scanErr
		}
		members = append(members, member)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}
