package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pagination"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// syncPages pulls every page and upserts it before asking for the next one.
// It returns the remote ids seen, including records that failed to map or persist.
func (o *Orchestrator) syncPages(ctx context.Context, adapter providers.Adapter, integration *models.Integration, result *SyncResult) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.syncPages")
	defer span.End()

	fetch := func(ctx context.Context, cursor pagination.Cursor) (*pagination.Page[models.RemoteRecord], error) {
		return adapter.ListPage(ctx, integration, cursor)
	}
	pages := pagination.New(adapter.Pagination(), fetch, pagination.WithMaxPages(o.config.MaxPages))

	var active []string
	for pages.HasMorePages() {
		items, err := pages.NextPage(ctx)
		if err != nil {
			switch {
			case errors.Is(err, pagination.ErrPaginationLimitExceeded), httpclient.IsAuthError(err):
				return active, err
			case ctx.Err() != nil:
				return active, ctx.Err()
			default:
				return active, fmt.Errorf("%w: page %d: %w", ErrRemoteFetch, pages.PagesFetched()+1, err)
			}
		}

		result.Pages = pages.PagesFetched()
		result.Fetched += len(items)
		metrics.SyncPagesFetched.WithLabelValues(string(integration.Provider)).Inc()

		for _, item := range items {
			if item.ID != "" {
				active = append(active, item.ID)
			}
		}
		o.upsertPage(ctx, adapter, integration, items, result)
	}

	return active, nil
}

// upsertPage splits items into batches. Batches run one after another; records inside a batch run concurrently.
func (o *Orchestrator) upsertPage(ctx context.Context, adapter providers.Adapter, integration *models.Integration, items []models.RemoteRecord, result *SyncResult) {
	for start := 0; start < len(items); start += o.config.BatchSize {
		end := min(start+o.config.BatchSize, len(items))
		upserted, errs := o.upsertBatch(ctx, adapter, integration, items[start:end])

		result.Upserted += upserted
		if failed := len(multierr.Errors(errs)); failed > 0 {
			result.Failed += failed
			result.RecordErrors = multierr.Append(result.RecordErrors, errs)
			o.logger.WithContext(ctx).WithError(errs).Warnf("Skipped %d of %d records in batch %d",
				failed, end-start, start/o.config.BatchSize+1)
		}
	}
}

func (o *Orchestrator) upsertBatch(ctx context.Context, adapter providers.Adapter, integration *models.Integration, batch []models.RemoteRecord) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.upsertBatch")
	defer span.End()

	var (
		mu       sync.Mutex
		errs     error
		upserted int
		g        errgroup.Group
	)

	for _, remote := range batch {
		g.Go(func() error {
			err := o.upsertOne(ctx, adapter, integration, remote)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
			} else {
				upserted++
			}
			return nil
		})
	}
	_ = g.Wait()

	return upserted, errs
}

func (o *Orchestrator) upsertOne(ctx context.Context, adapter providers.Adapter, integration *models.Integration, remote models.RemoteRecord) error {
	record, err := adapter.MapRecord(integration, remote, o.normalize)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRemoteRecord, remote.ID, err)
	}
	if err := o.records.Upsert(ctx, adapter.Target(), record); err != nil {
		return fmt.Errorf("%w: record %s: %w", ErrPersistence, remote.ID, err)
	}
	return nil
}
