package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bestwork/mlm-system/models"
)

var ErrProductNotFound = errors.New("product not found")

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id int) (*models.Product, error)
	List(ctx context.Context, activeOnly bool) ([]models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	UpdateImageKey(ctx context.Context, id int, key *string) error
	Delete(ctx context.Context, id int) error
}

type postgresProductRepository struct {
	db *sql.DB
}

func NewPostgresProductRepository(db *sql.DB) ProductRepository {
	return &postgresProductRepository{db: db}
}

func (r *postgresProductRepository) Create(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, point_value, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		product.Name,
		product.Description,
		product.Price,
		product.PointValue,
		product.Active,
	).Scan(&product.ID, &product.CreatedAt)
}

func (r *postgresProductRepository) GetByID(ctx context.Context, id int) (*models.Product, error) {
	product := &models.Product{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, price, point_value, active, image_key, created_at
		 FROM products WHERE id = $1`, id).
		Scan(&product.ID, &product.Name, &product.Description, &product.Price,
			&product.PointValue, &product.Active, &product.ImageKey, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

func (r *postgresProductRepository) List(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	query := `SELECT id, name, description, price, point_value, active, image_key, created_at
		FROM products`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price,
			&p.PointValue, &p.Active, &p.ImageKey, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *postgresProductRepository) Update(ctx context.Context, product *models.Product) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET name = $1, description = $2, price = $3, point_value = $4, active = $5
		 WHERE id = $6`,
		product.Name, product.Description, product.Price, product.PointValue, product.Active, product.ID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrProductNotFound)
}

func (r *postgresProductRepository) UpdateImageKey(ctx context.Context, id int, key *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET image_key = $1 WHERE id = $2`, key, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrProductNotFound)
}

func (r *postgresProductRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrProductNotFound)
}
