package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogProduct is the local projection of a PIM product. external_ref is
// the Akeneo-side key (identifier, or product uuid for delete fallbacks) and
// is the upsert key for the sync worker.
type CatalogProduct struct {
	ID          uint             `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalRef string           `gorm:"column:external_ref;type:text;not null;uniqueIndex:ux_catalog_products_external_ref"`
	SKU         string           `gorm:"column:sku;type:text;not null"`
	Name        string           `gorm:"column:name;type:text;not null"`
	Description *string          `gorm:"column:description;type:text"`
	Family      *string          `gorm:"column:family;type:text"`
	Price       *decimal.Decimal `gorm:"column:price;type:numeric(12,2)"`
	Currency    *string          `gorm:"column:currency;type:text"`
	IsActive    bool             `gorm:"column:is_active;not null;default:true"`
	RemovedAt   *time.Time       `gorm:"column:removed_at;type:timestamptz"`
	SyncedAt    time.Time        `gorm:"column:synced_at;type:timestamptz;not null"`
	CreatedAt   time.Time        `gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

// TableName pins the table name used by the catalog repository.
func (CatalogProduct) TableName() string {
	return "catalog_products"
}
