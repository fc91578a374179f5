package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bestwork/mlm-system/models"
	"github.com/google/uuid"
)

var ErrAddressNotFound = errors.New("address not found")

type AddressRepository interface {
	Create(ctx context.Context, memberID int, address *models.Address) error
	GetByAddressID(ctx context.Context, memberID int, addressID string) (*models.Address, error)
	ListByMember(ctx context.Context, memberID int) ([]models.Address, error)
	Delete(ctx context.Context, memberID int, addressID string) error
}

type postgresAddressRepository struct {
	db *sql.DB
}

func NewPostgresAddressRepository(db *sql.DB) AddressRepository {
	return &postgresAddressRepository{db: db}
}

func (r *postgresAddressRepository) Create(ctx context.Context, memberID int, address *models.Address) error {
	address.AddressID = uuid.NewString()
	query := `
		INSERT INTO addresses (address_id, member_id, label, line, city, district, postal_code, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	return r.db.QueryRowContext(ctx, query,
		address.AddressID,
		memberID,
		address.Label,
		address.Line,
		address.City,
		address.District,
		address.PostalCode,
		address.Note,
	).Scan(&address.CreatedAt)
}

func (r *postgresAddressRepository) GetByAddressID(ctx context.Context, memberID int, addressID string) (*models.Address, error) {
	address := &models.Address{}
	err := r.db.QueryRowContext(ctx,
		`SELECT address_id, label, line, city, district, postal_code, note, created_at
		 FROM addresses
		 WHERE member_id = $1 AND address_id = $2`, memberID, addressID).
		Scan(&address.AddressID, &address.Label, &address.Line, &address.City,
			&address.District, &address.PostalCode, &address.Note, &address.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return address, nil
}

func (r *postgresAddressRepository) ListByMember(ctx context.Context, memberID int) ([]models.Address, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT address_id, label, line, city, district, postal_code, note, created_at
		 FROM addresses
		 WHERE member_id = $1
		 ORDER BY created_at DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := make([]models.Address, 0)
	for rows.Next() {
		var a models.Address
		if err := rows.Scan(&a.AddressID, &a.Label, &a.Line, &a.City, &a.District,
			&a.PostalCode, &a.Note, &a.CreatedAt); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (r *postgresAddressRepository) Delete(ctx context.Context, memberID int, addressID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM addresses WHERE member_id = $1 AND address_id = $2`, memberID, addressID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrAddressNotFound)
}
