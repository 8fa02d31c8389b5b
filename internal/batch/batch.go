// Package batch performs chunked, transactional bulk inserts of equipment
// rows into an agency's equipement_* table. All chunks of one call share a
// single transaction: either every row lands or none does, because a
// half-imported equipment list corrupts downstream visit and report
// generation.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/alexandre-riera/somafi-ingest/internal/tenant"
	"github.com/jmoiron/sqlx"
)

// ChunkSize is the number of rows per multi-row INSERT statement.
const ChunkSize = 100

const insertColumnList = `id_contact, numero_equipement, libelle_equipement, visite, annee,
		marque, mode_fonctionnement, repere_site_client, is_hors_contrat, is_archive,
		derniere_visite, source_form_id, source_data_id, source_index`

const columnsPerRow = 14

// Result reports the outcome of one InsertBatch call. Errors holds
// human-readable descriptions of recoverable conditions (empty input, rolled
// back transaction); Inserted is zero whenever Errors is non-empty.
type Result struct {
	Inserted int      `json:"inserted"`
	Errors   []string `json:"errors,omitempty"`
}

// Writer inserts equipment rows.
type Writer struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewWriter creates a Writer backed by db.
func NewWriter(db *sqlx.DB, logger *slog.Logger) *Writer {
	return &Writer{
		db:     db,
		logger: logger,
	}
}

// InsertBatch normalizes rows, splits them into chunks of ChunkSize and
// inserts each chunk with one multi-row statement, all inside one
// transaction. A storage failure rolls back the whole batch and is reported
// in the Result rather than returned: the caller decides whether a failed
// import is fatal or retried after the user edits the file. The only error
// return is an invalid agency code, which must fail loudly before any SQL is
// composed.
func (w *Writer) InsertBatch(ctx context.Context, agencyCode string, rows []domain.EquipmentRecord) (Result, error) {
	tables, err := tenant.Resolve(agencyCode)
	if err != nil {
		return Result{}, err
	}

	if len(rows) == 0 {
		return Result{Errors: []string{"no rows to insert"}}, nil
	}

	normalized := make([]domain.EquipmentRecord, len(rows))
	for i, row := range rows {
		normalized[i] = row.Normalized()
	}

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		w.logger.Error("Failed to begin import transaction",
			slog.String("agency", tenant.Normalize(agencyCode)),
			slog.Any("error", err),
		)
		return Result{Errors: []string{fmt.Sprintf("failed to begin transaction: %s", err)}}, nil
	}

	inserted := 0
	for _, chunk := range chunkRows(normalized, ChunkSize) {
		query, args := buildInsert(tables.Equipment, chunk)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				w.logger.Error("Rollback failed after chunk error",
					slog.String("table", tables.Equipment),
					slog.Any("error", rbErr),
				)
			}
			w.logger.Error("Equipment batch rolled back",
				slog.String("agency", tenant.Normalize(agencyCode)),
				slog.String("table", tables.Equipment),
				slog.Int("rows", len(rows)),
				slog.Any("error", err),
			)
			return Result{Errors: []string{fmt.Sprintf("batch insert failed, no rows committed: %s", err)}}, nil
		}
		inserted += len(chunk)
	}

	if err := tx.Commit(); err != nil {
		w.logger.Error("Equipment batch commit failed",
			slog.String("agency", tenant.Normalize(agencyCode)),
			slog.String("table", tables.Equipment),
			slog.Int("rows", len(rows)),
			slog.Any("error", err),
		)
		return Result{Errors: []string{fmt.Sprintf("batch commit failed, no rows committed: %s", err)}}, nil
	}

	w.logger.Info("Equipment batch inserted",
		slog.String("agency", tenant.Normalize(agencyCode)),
		slog.String("table", tables.Equipment),
		slog.Int("inserted", inserted),
	)

	return Result{Inserted: inserted}, nil
}

// chunkRows splits rows into slices of at most size rows.
func chunkRows(rows []domain.EquipmentRecord, size int) [][]domain.EquipmentRecord {
	if size <= 0 {
		size = ChunkSize
	}

	var chunks [][]domain.EquipmentRecord
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// buildInsert renders one multi-row INSERT for a chunk. table must come from
// tenant.Resolve; it is the only identifier interpolated into the statement.
func buildInsert(table string, chunk []domain.EquipmentRecord) (string, []interface{}) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, insertColumnList)

	args := make([]interface{}, 0, len(chunk)*columnsPerRow)
	argIdx := 1

	for i, row := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for col := 0; col < columnsPerRow; col++ {
			if col > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(argIdx))
			argIdx++
		}
		sb.WriteString(")")

		args = append(args,
			row.IDContact,
			row.NumeroEquipement,
			row.LibelleEquipement,
			row.Visite,
			row.Annee,
			row.Marque,
			row.ModeFonctionnement,
			row.RepereSiteClient,
			row.IsHorsContrat,
			row.IsArchive,
			row.DerniereVisite,
			row.SourceFormID,
			row.SourceDataID,
			row.SourceIndex,
		)
	}

	return sb.String(), args
}
