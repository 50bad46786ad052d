package products

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/notes/backend/internal/contracts"
)

// Repository stores product documents in products.products
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Get implements contracts.ProductRepository
func (r *Repository) Get(ctx context.Context, id string) (*contracts.Product, error) {
	query := `SELECT document FROM products.products WHERE id = $1`

	var raw []byte
	if err := r.db.QueryRow(ctx, query, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %q: %w", id, contracts.ErrNotFound)
		}
		return nil, fmt.Errorf("query product: %w", err)
	}

	p, err := decodeRow(raw)
	if err != nil {
		return nil, fmt.Errorf("product %q: %w", id, err)
	}
	return &p, nil
}

// ListActive implements contracts.ProductRepository. Rows that fail to decode
// are skipped so one broken record never hides the others.
func (r *Repository) ListActive(ctx context.Context) ([]contracts.Product, error) {
	query := `SELECT id, document FROM products.products WHERE active ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.Product, 0)
	var skipped []string
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p, err := decodeRow(raw)
		if err != nil {
			skipped = append(skipped, id)
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	if len(skipped) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("%w: every active product failed to decode (%v)", contracts.ErrInvalidProduct, skipped)
	}
	return out, nil
}

// Save upserts a product document
func (r *Repository) Save(ctx context.Context, p contracts.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(FromProduct(p))
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	query := `
		INSERT INTO products.products (id, document, active, updated_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (id) DO UPDATE SET
			document = EXCLUDED.document,
			active = TRUE,
			updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, p.ID, doc); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// Deactivate removes a product from ListActive without deleting it
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE products.products SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %q: %w", id, contracts.ErrNotFound)
	}
	return nil
}

func decodeRow(raw []byte) (contracts.Product, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return contracts.Product{}, fmt.Errorf("%w: decode document: %v", contracts.ErrInvalidProduct, err)
	}
	return doc.ToProduct()
}
