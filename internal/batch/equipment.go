package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexandre-riera/somafi-ingest/internal/tenant"
)

// CountByContact returns the number of non-archived equipment rows a contact
// owns in the agency's table, the figure the import response and contract
// reporting surface.
func (w *Writer) CountByContact(ctx context.Context, agencyCode string, idContact int) (int, error) {
	tables, err := tenant.Resolve(agencyCode)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE id_contact = $1 AND is_archive = FALSE
	`, tables.Equipment)

	var count int
	if err := w.db.GetContext(ctx, &count, query, idContact); err != nil {
		return 0, fmt.Errorf("failed to count equipment on %s: %w", tables.Equipment, err)
	}

	return count, nil
}

// Archive soft-deletes one equipment row. Rows are never hard-deleted outside
// administrative cleanup; archival is the only mutation after insert.
func (w *Writer) Archive(ctx context.Context, agencyCode string, equipmentID int64) error {
	tables, err := tenant.Resolve(agencyCode)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET is_archive = TRUE WHERE id = $1`, tables.Equipment)

	result, err := w.db.ExecContext(ctx, query, equipmentID)
	if err != nil {
		return fmt.Errorf("failed to archive equipment on %s: %w", tables.Equipment, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("equipment %d not found in %s", equipmentID, tables.Equipment)
	}

	w.logger.Info("Equipment archived",
		slog.String("table", tables.Equipment),
		slog.Int64("equipment_id", equipmentID),
	)

	return nil
}
