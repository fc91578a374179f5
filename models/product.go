package models

import "time"

type Product struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	PointValue  float64 `json:"point_value"`
	Active      bool    `json:"active"`

	ImageKey *string `json:"-"`
	ImageURL *string `json:"image_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
