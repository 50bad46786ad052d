package products

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wonny/notes/backend/internal/contracts"
)

// File is the root of a product YAML file
type File struct {
	Products []Document `yaml:"products"`
}

// LoadFile reads and validates every product of a YAML file
// KnownFields(true): 오타/미사용 필드는 즉시 실패
func LoadFile(path string) ([]contracts.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read products file: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode reads products from YAML. One invalid product fails the whole file.
func Decode(r io.Reader) ([]contracts.Product, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode products: %w", err)
	}

	out := make([]contracts.Product, 0, len(file.Products))
	seen := make(map[string]bool, len(file.Products))
	for i, doc := range file.Products {
		p, err := doc.ToProduct()
		if err != nil {
			return nil, fmt.Errorf("products[%d]: %w", i, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("products[%d]: %w: duplicate id %q", i, contracts.ErrInvalidProduct, p.ID)
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out, nil
}

// MemoryRepository serves products held in memory, typically from LoadFile
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[string]contracts.Product
}

// NewMemoryRepository creates a repository holding products
func NewMemoryRepository(products ...contracts.Product) *MemoryRepository {
	r := &MemoryRepository{products: make(map[string]contracts.Product, len(products))}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

// Get implements contracts.ProductRepository
func (r *MemoryRepository) Get(_ context.Context, id string) (*contracts.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("product %q: %w", id, contracts.ErrNotFound)
	}
	return &p, nil
}

// ListActive implements contracts.ProductRepository. Products are ordered by id.
func (r *MemoryRepository) ListActive(_ context.Context) ([]contracts.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save stores or replaces a product
func (r *MemoryRepository) Save(_ context.Context, p contracts.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}
