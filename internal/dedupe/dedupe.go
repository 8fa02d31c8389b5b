// Package dedupe decides whether incoming equipment rows and ingest jobs were
// already persisted. Jobs are keyed on their upstream-origin triple; equipment
// rows either carry the same kind of origin triple or fall back to the domain
// key (contact, equipment number, visit, year).
//
// Equipment checks preload all existing keys for a (contact, year) scope in
// one query and partition the batch in memory, so importing hundreds of rows
// costs one round trip instead of one per row.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/alexandre-riera/somafi-ingest/internal/tenant"
	"github.com/jmoiron/sqlx"
)

// Index performs existence checks against the job and equipment tables.
type Index struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewIndex creates an Index backed by db.
func NewIndex(db *sqlx.DB, logger *slog.Logger) *Index {
	return &Index{
		db:     db,
		logger: logger,
	}
}

// JobExists reports whether a job with the given origin key already exists in
// any status. mediaName is nil for pdf jobs; IS NOT DISTINCT FROM makes the
// NULL compare as equal.
func (i *Index) JobExists(ctx context.Context, jobType string, formID, dataID int, mediaName *string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM ingest_jobs
			WHERE job_type = $1
			  AND form_id = $2
			  AND data_id = $3
			  AND media_name IS NOT DISTINCT FROM $4
		)
	`

	var exists bool
	err := i.db.GetContext(ctx, &exists, query, jobType, formID, dataID, mediaName)
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}

	return exists, nil
}

// EquipmentExistsByOrigin reports whether an equipment row with the given
// upstream-origin triple already exists in the agency's table. Used when a
// replayed Kizeo event would otherwise re-create a row.
func (i *Index) EquipmentExistsByOrigin(ctx context.Context, agencyCode string, formID, dataID, index int) (bool, error) {
	tables, err := tenant.Resolve(agencyCode)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE source_form_id = $1
			  AND source_data_id = $2
			  AND source_index = $3
		)
	`, tables.Equipment)

	var exists bool
	err = i.db.GetContext(ctx, &exists, query, formID, dataID, index)
	if err != nil {
		return false, fmt.Errorf("failed to check equipment origin on %s: %w", tables.Equipment, err)
	}

	return exists, nil
}

// Partition is the result of CheckDuplicates: rows already present versus rows
// safe to insert. Duplicates are reported, never silently dropped; the caller
// decides whether to skip them or force a re-insert.
type Partition struct {
	Duplicates []domain.EquipmentRecord
	Clean      []domain.EquipmentRecord
}

// CheckDuplicates partitions rows destined for one (contact, year) scope into
// duplicates and clean rows, using the domain key (equipment number + visit).
// Existing non-archived rows for the scope are loaded once; the rest is an
// in-memory set lookup. A repeated key inside rows itself also counts as a
// duplicate, so re-running the same import file stays idempotent.
//
// Rows are normalized first, with the same defaulting policy the insert path
// applies: a row arriving with a blank visite keys as CEA here, exactly as it
// would land in the table. The returned partition holds the normalized rows.
func (i *Index) CheckDuplicates(ctx context.Context, agencyCode string, idContact int, annee string, rows []domain.EquipmentRecord) (Partition, error) {
	tables, err := tenant.Resolve(agencyCode)
	if err != nil {
		return Partition{}, err
	}

	query := fmt.Sprintf(`
		SELECT numero_equipement, visite
		FROM %s
		WHERE id_contact = $1 AND annee = $2 AND is_archive = FALSE
	`, tables.Equipment)

	var existing []struct {
		NumeroEquipement string `db:"numero_equipement"`
		Visite           string `db:"visite"`
	}
	if err := i.db.SelectContext(ctx, &existing, query, idContact, annee); err != nil {
		return Partition{}, fmt.Errorf("failed to load existing equipment from %s: %w", tables.Equipment, err)
	}

	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e.NumeroEquipement+"|"+e.Visite] = struct{}{}
	}

	normalized := make([]domain.EquipmentRecord, len(rows))
	for n, row := range rows {
		normalized[n] = row.Normalized()
	}

	result := partitionRows(seen, normalized)

	i.logger.Debug("Duplicate check complete",
		slog.String("agency", tenant.Normalize(agencyCode)),
		slog.Int("id_contact", idContact),
		slog.String("annee", annee),
		slog.Int("existing", len(existing)),
		slog.Int("duplicates", len(result.Duplicates)),
		slog.Int("clean", len(result.Clean)),
	)

	return result, nil
}

// partitionRows splits rows against the set of already-seen domain keys,
// adding accepted keys to the set as it goes.
func partitionRows(seen map[string]struct{}, rows []domain.EquipmentRecord) Partition {
	var result Partition
	for _, row := range rows {
		key := row.DomainKey()
		if _, dup := seen[key]; dup {
			result.Duplicates = append(result.Duplicates, row)
			continue
		}
		seen[key] = struct{}{}
		result.Clean = append(result.Clean, row)
	}
	return result
}
