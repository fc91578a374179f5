package models

import "time"

type OrderStatus string

const (
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCanceled  OrderStatus = "canceled"
)

// OrderItem snapshots the product at purchase time so later catalog edits do
// not rewrite order history.
type OrderItem struct {
	ID        int     `json:"id"`
	OrderID   int     `json:"-"`
	ProductID int     `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

type Order struct {
	ID          int         `json:"id"`
	MemberID    int         `json:"member_id"`
	OrderNumber string      `json:"order_number"`
	Items       []OrderItem `json:"items"`
	Total       float64     `json:"total"`
	Status      OrderStatus `json:"status"`

	DeliveryLabel      string `json:"delivery_label"`
	DeliveryLine       string `json:"delivery_line"`
	DeliveryCity       string `json:"delivery_city"`
	DeliveryDistrict   string `json:"delivery_district"`
	DeliveryPostalCode string `json:"delivery_postal_code"`
	DeliveryNote       string `json:"delivery_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
