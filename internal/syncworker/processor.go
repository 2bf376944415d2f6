package syncworker

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/pimsync/internal/syncqueue"
	akeneowebhook "github.com/angelmondragon/pimsync/internal/webhooks/akeneo"
	"github.com/angelmondragon/pimsync/pkg/akeneo"
	"github.com/angelmondragon/pimsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
	"github.com/angelmondragon/pimsync/pkg/logger"
	"github.com/angelmondragon/pimsync/pkg/metrics"
)

// ProductFetcher loads the authoritative product state from the PIM.
type ProductFetcher interface {
	FetchProduct(ctx context.Context, identifier string) (*akeneo.Product, error)
}

// CatalogStore is the local projection the worker writes.
type CatalogStore interface {
	UpsertByExternalRef(ctx context.Context, product *models.CatalogProduct) error
	MarkRemoved(ctx context.Context, externalRef string) error
}

// Processor applies a single claimed job against the PIM and the local
// catalog. It returns nil on success, a terminal-coded error when the job
// must never be retried, and a retryable-coded error otherwise.
type Processor struct {
	fetcher ProductFetcher
	catalog CatalogStore
	mapper  *Mapper
	logg    *logger.Logger
	metrics *metrics.SyncMetrics

	// connStreak is only touched from the single worker goroutine that owns
	// this processor.
	connStreak int
}

// NewProcessor builds a processor over the PIM client and catalog store.
func NewProcessor(fetcher ProductFetcher, catalog CatalogStore, logg *logger.Logger, syncMetrics *metrics.SyncMetrics) *Processor {
	return &Processor{
		fetcher: fetcher,
		catalog: catalog,
		mapper:  NewMapper(),
		logg:    logg,
		metrics: syncMetrics,
	}
}

// Process runs the job to completion against current upstream state. Webhook
// payload contents are never trusted for data; the PIM is re-fetched so stale
// deliveries still converge on the latest state.
func (p *Processor) Process(ctx context.Context, job *syncqueue.SyncJob) error {
	switch job.Operation {
	case akeneowebhook.OpCreate, akeneowebhook.OpUpdate:
		return p.applyUpsert(ctx, job)
	case akeneowebhook.OpDelete:
		return p.applyDelete(ctx, job)
	default:
		return pkgerrors.New(pkgerrors.CodeTerminal, fmt.Sprintf("unknown sync operation %q", job.Operation))
	}
}

func (p *Processor) applyUpsert(ctx context.Context, job *syncqueue.SyncJob) error {
	product, err := p.fetcher.FetchProduct(ctx, job.ExternalRef)
	if err != nil {
		if errors.Is(err, akeneo.ErrNotFound) {
			p.resetConnStreak()
			// The product vanished between the event and this attempt. A
			// delete event follows or already passed; nothing to apply.
			p.logg.Warn(ctx, fmt.Sprintf("product %s no longer exists upstream, skipping", job.ExternalRef))
			return pkgerrors.Wrap(pkgerrors.CodeTerminal, err, "product vanished upstream")
		}
		p.bumpConnStreak()
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetching product from PIM")
	}
	p.resetConnStreak()

	row, err := p.mapper.Map(job.ExternalRef, product)
	if err != nil {
		return err
	}
	if err := p.catalog.UpsertByExternalRef(ctx, row); err != nil {
		return err
	}
	return nil
}

func (p *Processor) applyDelete(ctx context.Context, job *syncqueue.SyncJob) error {
	// MarkRemoved treats an absent local product as success, so replayed or
	// out-of-order deletes cost nothing.
	return p.catalog.MarkRemoved(ctx, job.ExternalRef)
}

func (p *Processor) bumpConnStreak() {
	p.connStreak++
	p.metrics.SetPIMConnectErrors(p.connStreak)
}

func (p *Processor) resetConnStreak() {
	if p.connStreak == 0 {
		return
	}
	p.connStreak = 0
	p.metrics.SetPIMConnectErrors(0)
}

// ConnStreak reports the current consecutive PIM connection failure count.
func (p *Processor) ConnStreak() int {
	return p.connStreak
}
