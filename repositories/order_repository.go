package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bestwork/mlm-system/models"
	"github.com/lib/pq"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderMemberInvalid = errors.New("order member invalid")
	ErrOrderNumberTaken   = errors.New("order number already taken")
)

type OrderRepository interface {
	// Create inserts the order header and its item snapshots. Pass a *sql.Tx as
	// exec so the header and items commit atomically.
	Create(ctx context.Context, exec SQLExecutor, order *models.Order) error
	GetByID(ctx context.Context, id int) (*models.Order, error)
	ListByMember(ctx context.Context, memberID int) ([]models.Order, error)
	CountByMember(ctx context.Context, memberID int) (int, error)
	// CountByNumberPrefix counts orders whose number starts with the given
	// date prefix; used for the daily order sequence.
	CountByNumberPrefix(ctx context.Context, prefix string) (int, error)
}

type postgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) OrderRepository {
	return &postgresOrderRepository{db: db}
}

func (r *postgresOrderRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresOrderRepository) Create(ctx context.Context, exec SQLExecutor, order *models.Order) error {
	e := r.getExecutor(exec)

	query := `
		INSERT INTO orders (
			member_id, order_number, total, status,
			delivery_label, delivery_line, delivery_city, delivery_district,
			delivery_postal_code, delivery_note
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := e.QueryRowContext(ctx, query,
		order.MemberID,
		order.OrderNumber,
		order.Total,
		order.Status,
		order.DeliveryLabel,
		order.DeliveryLine,
		order.DeliveryCity,
		order.DeliveryDistrict,
		order.DeliveryPostalCode,
		order.DeliveryNote,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch {
			case pqErr.Code == "23505" && pqErr.Constraint == "orders_order_number_key":
				return ErrOrderNumberTaken
			case pqErr.Code == "23503" && pqErr.Constraint == "orders_member_id_fkey":
				return ErrOrderMemberInvalid
			}
		}
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := e.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, name, price, quantity)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			item.OrderID, item.ProductID, item.Name, item.Price, item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresOrderRepository) GetByID(ctx context.Context, id int) (*models.Order, error) {
	order := &models.Order{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, member_id, order_number, total, status,
		        delivery_label, delivery_line, delivery_city, delivery_district,
		        delivery_postal_code, delivery_note, created_at
		 FROM orders WHERE id = $1`, id).
		Scan(&order.ID, &order.MemberID, &order.OrderNumber, &order.Total, &order.Status,
			&order.DeliveryLabel, &order.DeliveryLine, &order.DeliveryCity, &order.DeliveryDistrict,
			&order.DeliveryPostalCode, &order.DeliveryNote, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	items, err := r.listItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *postgresOrderRepository) ListByMember(ctx context.Context, memberID int) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, member_id, order_number, total, status,
		        delivery_label, delivery_line, delivery_city, delivery_district,
		        delivery_postal_code, delivery_note, created_at
		 FROM orders
		 WHERE member_id = $1
		 ORDER BY created_at DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.MemberID, &o.OrderNumber, &o.Total, &o.Status,
			&o.DeliveryLabel, &o.DeliveryLine, &o.DeliveryCity, &o.DeliveryDistrict,
			&o.DeliveryPostalCode, &o.DeliveryNote, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := r.listItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *postgresOrderRepository) CountByMember(ctx context.Context, memberID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE member_id = $1`, memberID).Scan(&count)
	return count, err
}

func (r *postgresOrderRepository) CountByNumberPrefix(ctx context.Context, prefix string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE order_number LIKE $1 || '%'`, prefix).Scan(&count)
	return count, err
}

func (r *postgresOrderRepository) listItems(ctx context.Context, orderID int) ([]models.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, name, price, quantity
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.OrderItem, 0)
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name,
			&item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
