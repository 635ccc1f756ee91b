package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
	"github.com/bharatsindha/icon-media-web-crawler/internal/storage/memory"
)

type fakeReportStore struct {
	stats    crawler.Statistics
	jobs     []crawler.JobSummary
	keywords []crawler.KeywordMaster
	err      error
	pingErr  error
	limit    int
}

func (f *fakeReportStore) Statistics(context.Context) (crawler.Statistics, error) {
	return f.stats, f.err
}

func (f *fakeReportStore) RecentJobs(_ context.Context, limit int) ([]crawler.JobSummary, error) {
	f.limit = limit
	return f.jobs, f.err
}

func (f *fakeReportStore) TopKeywords(_ context.Context, limit int) ([]crawler.KeywordMaster, error) {
	f.limit = limit
	return f.keywords, f.err
}

func (f *fakeReportStore) Ping(context.Context) error {
	return f.pingErr
}

func serve(t *testing.T, store crawler.ReportStore, target string) *httptest.ResponseRecorder {
	t.Helper()
	server := NewServer(store, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, &fakeReportStore{}, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	rec := serve(t, memory.NewStore(), "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ready")

	rec = serve(t, &fakeReportStore{pingErr: errors.New("connection refused")}, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(t, nil, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	rec := serve(t, &fakeReportStore{}, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "keyword_crawler_bytes_total")
}

func TestServer_StatsFromMemoryStore(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	_, err := store.AddDomains(context.Background(), []string{"acme.com", "globex.com"}, time.Now())
	require.NoError(t, err)

	rec := serve(t, store, "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Stats crawler.Statistics `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(2), body.Stats.Pending)
	require.Equal(t, int64(2), body.Stats.Total)
	require.Zero(t, body.Stats.TotalKeywords)
}

func TestServer_StatsError(t *testing.T) {
	t.Parallel()

	rec := serve(t, &fakeReportStore{err: errors.New("boom")}, "/v1/stats")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "failed to load statistics")
}

func TestServer_RecentJobs(t *testing.T) {
	t.Parallel()

	store := &fakeReportStore{jobs: []crawler.JobSummary{{
		CrawlJob: crawler.CrawlJob{ID: "job-1", DomainID: 7, Status: crawler.JobStatusCompleted, PagesCrawled: 3},
		Host:     "acme.com",
	}}}

	rec := serve(t, store, "/v1/jobs/recent?limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, store.limit)
	require.Contains(t, rec.Body.String(), `"job_id":"job-1"`)
	require.Contains(t, rec.Body.String(), `"domain":"acme.com"`)
}

func TestServer_RecentJobsEmptyIsArray(t *testing.T) {
	t.Parallel()

	rec := serve(t, &fakeReportStore{}, "/v1/jobs/recent")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"jobs":[]}`, rec.Body.String())
}

func TestServer_TopKeywords(t *testing.T) {
	t.Parallel()

	store := &fakeReportStore{keywords: []crawler.KeywordMaster{
		{ID: 1, Keyword: "Cloud Migration", Normalized: "cloud migration", UniqueDomainsCount: 4, TotalOccurrences: 9},
	}}

	rec := serve(t, store, "/v1/keywords/top")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, defaultKeywordLimit, store.limit)
	require.Contains(t, rec.Body.String(), `"normalized_keyword":"cloud migration"`)
}

func TestServer_LimitHandling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantLimit int
	}{
		{name: "clamped jobs", target: "/v1/jobs/recent?limit=100000", wantCode: http.StatusOK, wantLimit: maxJobLimit},
		{name: "clamped keywords", target: "/v1/keywords/top?limit=100000", wantCode: http.StatusOK, wantLimit: maxKeywordLimit},
		{name: "zero", target: "/v1/jobs/recent?limit=0", wantCode: http.StatusBadRequest},
		{name: "negative", target: "/v1/keywords/top?limit=-3", wantCode: http.StatusBadRequest},
		{name: "not a number", target: "/v1/jobs/recent?limit=ten", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := &fakeReportStore{}
			rec := serve(t, store, tt.target)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantLimit, store.limit)
			} else {
				require.Contains(t, rec.Body.String(), "invalid limit")
			}
		})
	}
}

func TestServer_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeReportStore{}, zap.NewNop())
	handler := server.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
