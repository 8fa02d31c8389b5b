package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexandre-riera/somafi-ingest/internal/api/dto"
	"github.com/alexandre-riera/somafi-ingest/internal/batch"
	"github.com/alexandre-riera/somafi-ingest/internal/dedupe"
	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/alexandre-riera/somafi-ingest/internal/queue"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeJobs struct {
	jobs         map[int64]*domain.Job
	reEnqueueErr error
	resetCount   int64
	purgeCount   int64
	purgeErr     error
	gotThreshold int
	gotStatus    string
	gotRetention int
	gotLimit     int
}

func (f *fakeJobs) GetByID(_ context.Context, jobID int64) (*domain.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) ReEnqueue(_ context.Context, jobID int64) error {
	return f.reEnqueueErr
}

func (f *fakeJobs) ResetStuck(_ context.Context, thresholdMinutes int) (int64, error) {
	f.gotThreshold = thresholdMinutes
	return f.resetCount, nil
}

func (f *fakeJobs) Purge(_ context.Context, status string, retentionDays int) (int64, error) {
	f.gotStatus = status
	f.gotRetention = retentionDays
	return f.purgeCount, f.purgeErr
}

func (f *fakeJobs) GlobalStats(_ context.Context) (map[string]queue.StatusCounts, error) {
	return map[string]queue.StatusCounts{
		domain.JobTypePhoto: {domain.JobStatusPending: 2},
		domain.JobTypePDF:   {},
	}, nil
}

func (f *fakeJobs) StatsByType(_ context.Context, jobType string) (queue.StatusCounts, error) {
	if !domain.ValidJobType(jobType) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidJobType, jobType)
	}
	return queue.StatusCounts{domain.JobStatusDone: 7}, nil
}

func (f *fakeJobs) StatsByAgency(_ context.Context) (map[string]queue.StatusCounts, error) {
	return map[string]queue.StatusCounts{"S10": {domain.JobStatusDone: 1}}, nil
}

func (f *fakeJobs) RecentFailures(_ context.Context, limit int) ([]domain.Job, error) {
	f.gotLimit = limit
	return nil, nil
}

type fakeDeduper struct {
	partition dedupe.Partition
	err       error
	gotAgency string
	gotRows   []domain.EquipmentRecord
}

func (f *fakeDeduper) CheckDuplicates(_ context.Context, agencyCode string, idContact int, annee string, rows []domain.EquipmentRecord) (dedupe.Partition, error) {
	f.gotAgency = agencyCode
	f.gotRows = rows
	return f.partition, f.err
}

type fakeImporter struct {
	result     batch.Result
	err        error
	archiveErr error
	total      int
	gotRows    []domain.EquipmentRecord
	inserted   bool
}

func (f *fakeImporter) InsertBatch(_ context.Context, agencyCode string, rows []domain.EquipmentRecord) (batch.Result, error) {
	f.inserted = true
	f.gotRows = rows
	return f.result, f.err
}

func (f *fakeImporter) CountByContact(_ context.Context, agencyCode string, idContact int) (int, error) {
	return f.total, nil
}

func (f *fakeImporter) Archive(_ context.Context, agencyCode string, equipmentID int64) error {
	return f.archiveErr
}

type fakePublisher struct {
	published [][]byte
	err       error
}

func (f *fakePublisher) PublishWithRetry(_ context.Context, body []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

func newTestRouter(deps *Dependencies) *gin.Engine {
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(deps)

	r := gin.New()
	r.POST("/api/v1/webhooks/kizeo", h.ReceiveWebhook)
	r.POST("/api/v1/agencies/:agency/equipments/import", h.ImportEquipments)
	r.POST("/api/v1/agencies/:agency/equipments/:equipment_id/archive", h.ArchiveEquipment)
	r.GET("/api/v1/jobs/stats", h.GlobalStats)
	r.GET("/api/v1/jobs/stats/types/:job_type", h.TypeStats)
	r.GET("/api/v1/jobs/failures", h.RecentFailures)
	r.GET("/api/v1/jobs/:job_id", h.GetJob)
	r.POST("/api/v1/ops/jobs/:job_id/re-enqueue", h.ReEnqueueJob)
	r.POST("/api/v1/ops/reset-stuck", h.ResetStuck)
	r.POST("/api/v1/ops/purge", h.PurgeJobs)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestImportEquipments_SkipsDuplicates(t *testing.T) {
	clean := []domain.EquipmentRecord{
		{IDContact: 77, NumeroEquipement: "SEC03", Visite: domain.VisiteCEA, Annee: "2026"},
	}
	deduper := &fakeDeduper{
		partition: dedupe.Partition{
			Duplicates: []domain.EquipmentRecord{
				{IDContact: 77, NumeroEquipement: "SEC01", Visite: domain.VisiteCEA, Annee: "2026"},
			},
			Clean: clean,
		},
	}
	importer := &fakeImporter{result: batch.Result{Inserted: 1}, total: 5}

	r := newTestRouter(&Dependencies{Deduper: deduper, Importer: importer})

	w := doJSON(t, r, http.MethodPost, "/api/v1/agencies/S10/equipments/import", dto.ImportRequest{
		IDContact: 77,
		Annee:     "2026",
		Rows: []dto.ImportRow{
			{NumeroEquipement: "SEC01", Visite: domain.VisiteCEA, Annee: "2026"},
			{NumeroEquipement: "SEC03", Visite: domain.VisiteCEA, Annee: "2026"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 1, resp.Inserted)
	assert.Equal(t, 5, resp.Total)
	require.Len(t, resp.Duplicates, 1)
	assert.Contains(t, resp.Duplicates[0], "SEC01")
	assert.Equal(t, clean, importer.gotRows)

	// The request-level contact fills zero per-row contacts.
	require.Len(t, deduper.gotRows, 2)
	assert.Equal(t, 77, deduper.gotRows[0].IDContact)
}

func TestImportEquipments_ForceInsertsAll(t *testing.T) {
	deduper := &fakeDeduper{
		partition: dedupe.Partition{
			Duplicates: []domain.EquipmentRecord{
				{IDContact: 77, NumeroEquipement: "SEC01", Visite: domain.VisiteCEA, Annee: "2026"},
			},
		},
	}
	importer := &fakeImporter{result: batch.Result{Inserted: 1}}

	r := newTestRouter(&Dependencies{Deduper: deduper, Importer: importer})

	w := doJSON(t, r, http.MethodPost, "/api/v1/agencies/S10/equipments/import?force=true", dto.ImportRequest{
		IDContact: 77,
		Rows: []dto.ImportRow{
			{NumeroEquipement: "SEC01", Visite: domain.VisiteCEA, Annee: "2026"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, importer.inserted)
	assert.Len(t, importer.gotRows, 1)
}

func TestImportEquipments_UnknownAgency(t *testing.T) {
	r := newTestRouter(&Dependencies{Deduper: &fakeDeduper{}, Importer: &fakeImporter{}})

	w := doJSON(t, r, http.MethodPost, "/api/v1/agencies/S999/equipments/import", dto.ImportRequest{
		IDContact: 1,
		Rows:      []dto.ImportRow{{NumeroEquipement: "SEC01"}},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "S999")
}

func TestArchiveEquipment(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		archiveErr error
		wantCode   int
	}{
		{name: "archived", path: "/api/v1/agencies/S10/equipments/42/archive", wantCode: http.StatusOK},
		{name: "unknown agency", path: "/api/v1/agencies/S999/equipments/42/archive", wantCode: http.StatusBadRequest},
		{name: "non-numeric id", path: "/api/v1/agencies/S10/equipments/abc/archive", wantCode: http.StatusBadRequest},
		{
			name:       "missing equipment",
			path:       "/api/v1/agencies/S10/equipments/42/archive",
			archiveErr: fmt.Errorf("equipment 42 not found in equipement_s10"),
			wantCode:   http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			importer := &fakeImporter{archiveErr: tt.archiveErr}
			r := newTestRouter(&Dependencies{Importer: importer})

			w := doJSON(t, r, http.MethodPost, tt.path, nil)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestReceiveWebhook_PublishesEvent(t *testing.T) {
	publisher := &fakePublisher{}
	r := newTestRouter(&Dependencies{Publisher: publisher})

	w := doJSON(t, r, http.MethodPost, "/api/v1/webhooks/kizeo", dto.WebhookRequest{
		AgencyCode: "S40",
		FormID:     123,
		DataID:     456,
		IDContact:  77,
		Medias:     []string{"front.jpg"},
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, publisher.published, 1)

	var event dto.WebhookRequest
	require.NoError(t, json.Unmarshal(publisher.published[0], &event))
	assert.Equal(t, "S40", event.AgencyCode)
	assert.Equal(t, 123, event.FormID)
	assert.Equal(t, []string{"front.jpg"}, event.Medias)
}

func TestReceiveWebhook_BrokerDown(t *testing.T) {
	publisher := &fakePublisher{err: fmt.Errorf("connection refused")}
	r := newTestRouter(&Dependencies{Publisher: publisher})

	w := doJSON(t, r, http.MethodPost, "/api/v1/webhooks/kizeo", dto.WebhookRequest{
		AgencyCode: "S40",
		FormID:     123,
		DataID:     456,
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReceiveWebhook_UnknownAgency(t *testing.T) {
	r := newTestRouter(&Dependencies{Publisher: &fakePublisher{}})

	w := doJSON(t, r, http.MethodPost, "/api/v1/webhooks/kizeo", dto.WebhookRequest{
		AgencyCode: "XX",
		FormID:     123,
		DataID:     456,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	r := newTestRouter(&Dependencies{Jobs: &fakeJobs{jobs: map[int64]*domain.Job{}}})

	w := doJSON(t, r, http.MethodGet, "/api/v1/jobs/42", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJob_Found(t *testing.T) {
	jobs := &fakeJobs{jobs: map[int64]*domain.Job{
		42: {ID: 42, JobType: domain.JobTypePDF, AgencyCode: "S10", Status: domain.JobStatusPending},
	}}
	r := newTestRouter(&Dependencies{Jobs: jobs})

	w := doJSON(t, r, http.MethodGet, "/api/v1/jobs/42", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var job domain.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, int64(42), job.ID)
	assert.Equal(t, domain.JobTypePDF, job.JobType)
}

func TestRecentFailures_LimitHandling(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
	}{
		{name: "default limit", query: "", wantCode: http.StatusOK, wantLimit: 20},
		{name: "explicit limit", query: "?limit=5", wantCode: http.StatusOK, wantLimit: 5},
		{name: "limit capped", query: "?limit=500", wantCode: http.StatusOK, wantLimit: 100},
		{name: "negative limit", query: "?limit=-1", wantCode: http.StatusBadRequest},
		{name: "non-numeric limit", query: "?limit=abc", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeJobs{}
			r := newTestRouter(&Dependencies{Jobs: jobs})

			w := doJSON(t, r, http.MethodGet, "/api/v1/jobs/failures"+tt.query, nil)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantLimit, jobs.gotLimit)
			}
		})
	}
}

func TestTypeStats(t *testing.T) {
	t.Run("known type", func(t *testing.T) {
		r := newTestRouter(&Dependencies{Jobs: &fakeJobs{}})

		w := doJSON(t, r, http.MethodGet, "/api/v1/jobs/stats/types/photo", nil)

		require.Equal(t, http.StatusOK, w.Code)

		var stats queue.StatusCounts
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, int64(7), stats[domain.JobStatusDone])
	})

	t.Run("unknown type", func(t *testing.T) {
		r := newTestRouter(&Dependencies{Jobs: &fakeJobs{}})

		w := doJSON(t, r, http.MethodGet, "/api/v1/jobs/stats/types/video", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "video")
	})
}

func TestReEnqueueJob_Conflict(t *testing.T) {
	jobs := &fakeJobs{reEnqueueErr: domain.ErrJobConflict}
	r := newTestRouter(&Dependencies{Jobs: jobs})

	w := doJSON(t, r, http.MethodPost, "/api/v1/ops/jobs/42/re-enqueue", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResetStuck_PassesThreshold(t *testing.T) {
	jobs := &fakeJobs{resetCount: 3}
	r := newTestRouter(&Dependencies{Jobs: jobs})

	w := doJSON(t, r, http.MethodPost, "/api/v1/ops/reset-stuck", dto.ResetStuckRequest{ThresholdMinutes: 30})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, jobs.gotThreshold)

	var resp dto.CountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Count)
}

func TestResetStuck_EmptyBodyUsesDefaults(t *testing.T) {
	jobs := &fakeJobs{resetCount: 1, gotThreshold: -1}
	r := newTestRouter(&Dependencies{Jobs: jobs})

	w := doJSON(t, r, http.MethodPost, "/api/v1/ops/reset-stuck", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, jobs.gotThreshold)

	var resp dto.CountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Count)
}

func TestPurgeJobs_EmptyBodyReachesValidation(t *testing.T) {
	jobs := &fakeJobs{purgeErr: fmt.Errorf("cannot purge jobs in status %q", "")}
	r := newTestRouter(&Dependencies{Jobs: jobs})

	w := doJSON(t, r, http.MethodPost, "/api/v1/ops/purge", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "", jobs.gotStatus)
	assert.NotContains(t, w.Body.String(), "Invalid request body")
}

func TestPurgeJobs_InvalidStatus(t *testing.T) {
	jobs := &fakeJobs{purgeErr: fmt.Errorf("cannot purge jobs in status %q", "pending")}
	r := newTestRouter(&Dependencies{Jobs: jobs})

	w := doJSON(t, r, http.MethodPost, "/api/v1/ops/purge", dto.PurgeRequest{Status: "pending"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "pending")
}
