package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/pimsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists the local catalog projection the sync worker writes.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// UpsertByExternalRef inserts the product or overwrites the existing row
// keyed by external_ref. Re-applying the same upstream state twice leaves the
// row unchanged, which is what makes sync retries safe.
func (r *Repository) UpsertByExternalRef(ctx context.Context, product *models.CatalogProduct) error {
	if product.ExternalRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external ref is required")
	}
	if product.SyncedAt.IsZero() {
		product.SyncedAt = time.Now().UTC()
	}
	// A fresh upstream state clears any prior removal.
	product.RemovedAt = nil

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_ref"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"sku", "name", "description", "family", "price", "currency",
				"is_active", "removed_at", "synced_at", "updated_at",
			}),
		}).
		Create(product).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upserting catalog product")
	}
	return nil
}

// MarkRemoved flags the product as removed and inactive. A product that was
// never synced locally is a no-op success; the upstream deletion already
// holds.
func (r *Repository) MarkRemoved(ctx context.Context, externalRef string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.CatalogProduct{}).
		Where("external_ref = ?", externalRef).
		Updates(map[string]any{
			"is_active":  false,
			"removed_at": now,
			"synced_at":  now,
		})
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "marking catalog product removed")
	}
	return nil
}

// FindByExternalRef loads a single product row.
func (r *Repository) FindByExternalRef(ctx context.Context, externalRef string) (*models.CatalogProduct, error) {
	var product models.CatalogProduct
	err := r.db.WithContext(ctx).First(&product, "external_ref = ?", externalRef).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "catalog product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading catalog product")
	}
	return &product, nil
}

// CountActive reports how many products are currently live locally.
func (r *Repository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CatalogProduct{}).
		Where("is_active = ? AND removed_at IS NULL", true).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting active products")
	}
	return count, nil
}
