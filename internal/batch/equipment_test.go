package batch

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountByContact(t *testing.T) {
	t.Run("counts non-archived rows only", func(t *testing.T) {
		writer, mock := newTestWriter(t)
		mock.ExpectQuery("SELECT COUNT(.+) FROM equipement_s40").
			WithArgs(77).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

		count, err := writer.CountByContact(context.Background(), "S40", 77)
		require.NoError(t, err)
		assert.Equal(t, 12, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid agency", func(t *testing.T) {
		writer, mock := newTestWriter(t)

		_, err := writer.CountByContact(context.Background(), "NOPE", 77)
		assert.ErrorIs(t, err, domain.ErrInvalidAgency)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestArchive(t *testing.T) {
	t.Run("archives existing row", func(t *testing.T) {
		writer, mock := newTestWriter(t)
		mock.ExpectExec("UPDATE equipement_s10 SET is_archive = TRUE").
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := writer.Archive(context.Background(), "S10", 42)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row reports error", func(t *testing.T) {
		writer, mock := newTestWriter(t)
		mock.ExpectExec("UPDATE equipement_s10 SET is_archive = TRUE").
			WithArgs(int64(42)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := writer.Archive(context.Background(), "S10", 42)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid agency", func(t *testing.T) {
		writer, mock := newTestWriter(t)

		err := writer.Archive(context.Background(), "NOPE", 42)
		assert.ErrorIs(t, err, domain.ErrInvalidAgency)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
