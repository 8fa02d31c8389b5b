package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnqueuer records enqueued jobs and can reject specific media names.
type fakeEnqueuer struct {
	jobs       []domain.Job
	duplicates map[string]bool
	err        error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, job *domain.Job) error {
	if f.err != nil {
		return f.err
	}
	key := job.JobType
	if job.MediaName != nil {
		key += ":" + *job.MediaName
	}
	if f.duplicates[key] {
		return domain.ErrDuplicateJob
	}
	f.jobs = append(f.jobs, *job)
	return nil
}

func testConsumer(enqueuer Enqueuer) *Consumer {
	return &Consumer{
		queue:  enqueuer,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestFormEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   FormEvent
		wantErr bool
	}{
		{
			name:  "valid event",
			event: FormEvent{AgencyCode: "S10", FormID: 1, DataID: 100},
		},
		{
			name:    "unknown agency",
			event:   FormEvent{AgencyCode: "S999", FormID: 1, DataID: 100},
			wantErr: true,
		},
		{
			name:    "missing form id",
			event:   FormEvent{AgencyCode: "S10", DataID: 100},
			wantErr: true,
		},
		{
			name:    "missing data id",
			event:   FormEvent{AgencyCode: "S10", FormID: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnqueueJobs(t *testing.T) {
	t.Run("one photo job per media plus one pdf job", func(t *testing.T) {
		enqueuer := &fakeEnqueuer{}
		consumer := testConsumer(enqueuer)

		event := &FormEvent{
			AgencyCode: "S10",
			FormID:     1,
			DataID:     100,
			IDContact:  42,
			Medias:     []string{"p1.jpg", "p2.jpg"},
		}

		enqueued, err := consumer.enqueueJobs(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, 3, enqueued)
		require.Len(t, enqueuer.jobs, 3)

		assert.Equal(t, domain.JobTypePhoto, enqueuer.jobs[0].JobType)
		assert.Equal(t, "p1.jpg", *enqueuer.jobs[0].MediaName)
		assert.Equal(t, "p2.jpg", *enqueuer.jobs[1].MediaName)
		assert.Equal(t, domain.JobTypePDF, enqueuer.jobs[2].JobType)
		assert.Nil(t, enqueuer.jobs[2].MediaName)
		assert.Equal(t, 42, enqueuer.jobs[2].IDContact)
	})

	t.Run("duplicates are absorbed", func(t *testing.T) {
		enqueuer := &fakeEnqueuer{duplicates: map[string]bool{
			"photo:p1.jpg": true,
			"pdf":          true,
		}}
		consumer := testConsumer(enqueuer)

		event := &FormEvent{
			AgencyCode: "S10",
			FormID:     1,
			DataID:     100,
			Medias:     []string{"p1.jpg", "p2.jpg"},
		}

		enqueued, err := consumer.enqueueJobs(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, 1, enqueued)
		require.Len(t, enqueuer.jobs, 1)
		assert.Equal(t, "p2.jpg", *enqueuer.jobs[0].MediaName)
	})

	t.Run("storage errors propagate", func(t *testing.T) {
		enqueuer := &fakeEnqueuer{err: errors.New("connection refused")}
		consumer := testConsumer(enqueuer)

		event := &FormEvent{
			AgencyCode: "S10",
			FormID:     1,
			DataID:     100,
			Medias:     []string{"p1.jpg"},
		}

		_, err := consumer.enqueueJobs(context.Background(), event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("blank media names are skipped", func(t *testing.T) {
		enqueuer := &fakeEnqueuer{}
		consumer := testConsumer(enqueuer)

		event := &FormEvent{
			AgencyCode: "S10",
			FormID:     1,
			DataID:     100,
			Medias:     []string{"", "p1.jpg"},
		}

		enqueued, err := consumer.enqueueJobs(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, 2, enqueued)
		require.Len(t, enqueuer.jobs, 2)
		assert.Equal(t, "p1.jpg", *enqueuer.jobs[0].MediaName)
		assert.Equal(t, domain.JobTypePDF, enqueuer.jobs[1].JobType)
	})

	t.Run("event without medias still yields a pdf job", func(t *testing.T) {
		enqueuer := &fakeEnqueuer{}
		consumer := testConsumer(enqueuer)

		event := &FormEvent{AgencyCode: "S40", FormID: 2, DataID: 200}

		enqueued, err := consumer.enqueueJobs(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, 1, enqueued)
		require.Len(t, enqueuer.jobs, 1)
		assert.Equal(t, domain.JobTypePDF, enqueuer.jobs[0].JobType)
	})
}
