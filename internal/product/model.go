package product

import (
	"time"

	"github.com/gofrs/uuid"
)

// Product is the live catalog entry. Orders snapshot name, image and price
// at creation time; only CountInStock is ever mutated by order lifecycle
// transitions.
type Product struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Image        string    `json:"image" db:"image"`
	Brand        string    `json:"brand" db:"brand"`
	Category     string    `json:"category" db:"category"`
	Description  string    `json:"description" db:"description"`
	Price        float64   `json:"price" db:"price"`
	CountInStock int       `json:"count_in_stock" db:"count_in_stock"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
