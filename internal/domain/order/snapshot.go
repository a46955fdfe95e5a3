package order

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/fruitsmith-checkout/internal/domain/product"
)

// BuildSnapshot resolves every cart line against the catalog in a single
// batch and freezes name, price and images into line items. It fails closed:
// one unknown product rejects the whole cart.
func BuildSnapshot(ctx context.Context, lines []CartLine, catalog product.Repository) ([]LineItem, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		if !slices.Contains(ids, line.ProductID) {
			ids = append(ids, line.ProductID)
		}
	}

	fetched, err := catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	items := make([]LineItem, 0, len(lines))
	for _, line := range lines {
		p, ok := productMap[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		items = append(items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
			Image:     slices.Clone(p.Images),
		})
	}
	return items, nil
}

// Normalize trims every address field.
func (a Address) Normalize() Address {
	return Address{
		Name:    strings.TrimSpace(a.Name),
		Mobile:  strings.TrimSpace(a.Mobile),
		Street:  strings.TrimSpace(a.Street),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		Zip:     strings.TrimSpace(a.Zip),
		Country: strings.TrimSpace(a.Country),
	}
}

// Validate checks that all address fields are present.
func (a Address) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"name", a.Name},
		{"mobile", a.Mobile},
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zip", a.Zip},
		{"country", a.Country},
	}
	for _, f := range fields {
		if f.value == "" {
			return &AddressError{Field: f.name}
		}
	}
	return nil
}
