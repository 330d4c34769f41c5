package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Disconnect deletes an integration and its pending, undated records in one transaction.
// It takes the sync lock so a running pass cannot recreate what was just deleted.
func (o *Orchestrator) Disconnect(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.Disconnect")
	defer span.End()

	return o.withLock(ctx, id, func(ctx context.Context) error {
		return database.WithTx(ctx, o.db, func(ctx context.Context, _ database.Tx) error {
			var removed int64
			for _, target := range []models.RecordTarget{models.TargetTasks, models.TargetEvents} {
				n, err := o.records.DeletePendingUndated(ctx, target, id)
				if err != nil {
					return err
				}
				removed += n
			}

			if err := o.integrations.Delete(ctx, id); err != nil {
				return err
			}

			o.logger.WithContext(ctx).WithFields(map[string]any{
				"integration_id":  id,
				"records_deleted": removed,
			}).Info("Disconnected integration")
			return nil
		})
	})
}
