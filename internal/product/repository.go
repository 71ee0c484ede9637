package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Querier is the subset of pgx the repository needs. It is satisfied by
// both *pgxpool.Pool and pgx.Tx, so callers can run the same stock
// operations standalone or inside their own transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	db Querier
}

func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `
		SELECT id, name, image, brand, category, description, price, count_in_stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Image,
		&p.Brand,
		&p.Category,
		&p.Description,
		&p.Price,
		&p.CountInStock,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id, err)
	}

	return &p, nil
}

// DecrementStock performs the availability check and the decrement as one
// conditional update. Under concurrent orders the row predicate serializes
// the two, so count_in_stock can never go negative.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	query := `
		UPDATE products
		SET count_in_stock = count_in_stock - $2, updated_at = $3
		WHERE id = $1 AND count_in_stock >= $2
	`

	cmdTag, err := r.db.Exec(ctx, query, id, qty, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			// The schema CHECK is a backstop; the WHERE guard should have
			// rejected this first.
			return ErrInsufficientStock
		}

		return fmt.Errorf("repository: failed to decrement stock for product %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}

		return ErrInsufficientStock
	}

	return nil
}

// IncrementStock reverses a prior decrement, e.g. on cancellation of an
// unshipped order.
func (r *Repository) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	query := `
		UPDATE products
		SET count_in_stock = count_in_stock + $2, updated_at = $3
		WHERE id = $1
	`

	cmdTag, err := r.db.Exec(ctx, query, id, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: failed to increment stock for product %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) Create(ctx context.Context, p *Product) error {
	if p.ID == uuid.Nil {
		genID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate product ID: %w", err)
		}
		p.ID = genID
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO products (id, name, image, brand, category, description, price, count_in_stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Image,
		p.Brand,
		p.Category,
		p.Description,
		p.Price,
		p.CountInStock,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}

	return nil
}
