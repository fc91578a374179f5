package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bestwork/mlm-system/models"
	"github.com/lib/pq"
)

var (
	ErrBeneficiaryNotFound      = errors.New("beneficiary not found")
	ErrBeneficiaryMemberInvalid = errors.New("beneficiary member invalid")
)

type BeneficiaryRepository interface {
	Create(ctx context.Context, beneficiary *models.Beneficiary) error
	ListByMember(ctx context.Context, memberID int) ([]models.Beneficiary, error)
	Delete(ctx context.Context, memberID, id int) error
}

type postgresBeneficiaryRepository struct {
	db *sql.DB
}

func NewPostgresBeneficiaryRepository(db *sql.DB) BeneficiaryRepository {
	return &postgresBeneficiaryRepository{db: db}
}

func (r *postgresBeneficiaryRepository) Create(ctx context.Context, beneficiary *models.Beneficiary) error {
	query := `
		INSERT INTO beneficiaries (member_id, full_name, relation, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		beneficiary.MemberID,
		beneficiary.FullName,
		beneficiary.Relation,
		beneficiary.Phone,
	).Scan(&beneficiary.ID, &beneficiary.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			if pqErr.Constraint == "beneficiaries_member_id_fkey" {
				return ErrBeneficiaryMemberInvalid
			}
		}
		return err
	}
	return nil
}

func (r *postgresBeneficiaryRepository) ListByMember(ctx context.Context, memberID int) ([]models.Beneficiary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, member_id, full_name, relation, phone, created_at
		 FROM beneficiaries
		 WHERE member_id = $1
		 ORDER BY created_at ASC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	beneficiaries := make([]models.Beneficiary, 0)
	for rows.Next() {
		var b models.Beneficiary
		if err := rows.Scan(&b.ID, &b.MemberID, &b.FullName, &b.Relation, &b.Phone, &b.CreatedAt); err != nil {
			return nil, err
		}
		beneficiaries = append(beneficiaries, b)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return beneficiaries, nil
}

func (r *postgresBeneficiaryRepository) Delete(ctx context.Context, memberID, id int) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM beneficiaries WHERE id = $1 AND member_id = $2`, id, memberID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrBeneficiaryNotFound)
}
