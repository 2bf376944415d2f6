package syncworker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/pimsync/pkg/akeneo"
	"github.com/angelmondragon/pimsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Attribute codes read off the PIM product. Everything else in the values map
// is ignored.
const (
	attrName        = "name"
	attrLabel       = "label"
	attrDescription = "description"
	attrPrice       = "price"
)

// priceValue mirrors the PIM price attribute entries.
type priceValue struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// mappedProduct carries the validation rules for what the local catalog can
// accept. A product that fails these is terminally unmappable; retrying
// cannot fix the upstream data.
type mappedProduct struct {
	ExternalRef string `validate:"required"`
	SKU         string `validate:"required"`
	Name        string `validate:"required"`
}

// Mapper translates fetched PIM products into local catalog rows.
type Mapper struct {
	validate *validator.Validate
}

// NewMapper builds a mapper with its validator.
func NewMapper() *Mapper {
	return &Mapper{validate: validator.New()}
}

// Map builds the catalog row for the product. externalRef is the reference
// the job carries, which stays the upsert key even when the PIM identifier
// differs. Unmappable products return a terminal error.
func (m *Mapper) Map(externalRef string, product *akeneo.Product) (*models.CatalogProduct, error) {
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeTerminal, "no product data to map")
	}

	name := stringValue(product, attrName)
	if name == "" {
		name = stringValue(product, attrLabel)
	}

	row := &models.CatalogProduct{
		ExternalRef: externalRef,
		SKU:         product.Identifier,
		Name:        name,
		Family:      product.Family,
		IsActive:    product.Enabled,
		SyncedAt:    time.Now().UTC(),
	}
	if row.SKU == "" {
		row.SKU = product.UUID
	}

	if description := stringValue(product, attrDescription); description != "" {
		row.Description = &description
	}

	if raw := product.FirstValue(attrPrice); raw != nil {
		price, currency, err := parsePrice(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTerminal, err, "unparseable product price")
		}
		if price != nil {
			row.Price = price
			row.Currency = &currency
		}
	}

	if err := m.validate.Struct(mappedProduct{
		ExternalRef: row.ExternalRef,
		SKU:         row.SKU,
		Name:        row.Name,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTerminal, err, "product cannot be mapped to the catalog")
	}
	return row, nil
}

func stringValue(product *akeneo.Product, attribute string) string {
	raw := product.FirstValue(attribute)
	if raw == nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

func parsePrice(raw json.RawMessage) (*decimal.Decimal, string, error) {
	var entries []priceValue
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, "", fmt.Errorf("decode price attribute: %w", err)
	}
	if len(entries) == 0 {
		return nil, "", nil
	}
	amount, err := decimal.NewFromString(entries[0].Amount)
	if err != nil {
		return nil, "", fmt.Errorf("parse price amount %q: %w", entries[0].Amount, err)
	}
	return &amount, entries[0].Currency, nil
}
