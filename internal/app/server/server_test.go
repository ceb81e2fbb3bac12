package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/service"
	"github.com/sifan077/shortener/internal/http/middleware"
	infraprom "github.com/sifan077/shortener/internal/infra/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLinks struct {
	created int
}

func (s *stubLinks) CreateLink(ctx context.Context, targetURL string) (*model.Link, error) {
	s.created++
	return &model.Link{ID: "NDI", TargetURL: targetURL}, nil
}

func (s *stubLinks) GetLink(ctx context.Context, id string) (*model.Link, error) {
	if id == "NDI" {
		return &model.Link{ID: id, TargetURL: "https://example.com"}, nil
	}
	return nil, repository.ErrLinkNotFound
}

func (s *stubLinks) UpdateLink(ctx context.Context, id, targetURL string) (*model.Link, error) {
	return &model.Link{ID: id, TargetURL: targetURL}, nil
}

type stubStatistics struct {
	recorded []model.LinkStatistic
}

func (s *stubStatistics) RecordAsync(stat model.LinkStatistic) {
	s.recorded = append(s.recorded, stat)
}

func (s *stubStatistics) CountByLink(ctx context.Context, linkID string) ([]model.CountedLinkStatistics, error) {
	return []model.CountedLinkStatistics{{Amount: 3}}, nil
}

func (s *stubStatistics) Wait(ctx context.Context) error { return nil }

type keyAuth string

func (k keyAuth) Authenticate(ctx context.Context, apiKey string) error {
	switch apiKey {
	case "":
		return service.ErrMissingAPIKey
	case string(k):
		return nil
	default:
		return service.ErrInvalidAPIKey
	}
}

type testServer struct {
	*Server
	links   *stubLinks
	stats   *stubStatistics
	metrics *infraprom.Metrics
}

func newTestServer() *testServer {
	links := &stubLinks{}
	stats := &stubStatistics{}
	metrics := infraprom.NewMetrics()
	srv := New(Dependencies{
		Metrics:    metrics,
		Links:      links,
		Statistics: stats,
		Auth:       keyAuth("secret"),
	})
	return &testServer{Server: srv, links: links, stats: stats, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, target, body, apiKey string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, apiKey)
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(data)
}

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		apiKey     string
		wantStatus int
		wantBody   string
	}{
		{name: "health", method: http.MethodGet, target: "/health", wantStatus: http.StatusOK, wantBody: "Service healthy"},
		{name: "redirect hit", method: http.MethodGet, target: "/NDI", wantStatus: http.StatusTemporaryRedirect},
		{name: "redirect miss", method: http.MethodGet, target: "/nope", wantStatus: http.StatusOK, wantBody: "Not found"},
		{name: "create", method: http.MethodPost, target: "/create", body: `{"targetUrl":"https://example.com"}`, apiKey: "secret", wantStatus: http.StatusCreated},
		{name: "create without key", method: http.MethodPost, target: "/create", body: `{"targetUrl":"https://example.com"}`, wantStatus: http.StatusUnauthorized},
		{name: "update with wrong key", method: http.MethodPatch, target: "/NDI", body: `{"targetUrl":"https://example.com"}`, apiKey: "guess", wantStatus: http.StatusUnauthorized},
		{name: "update", method: http.MethodPatch, target: "/NDI", body: `{"targetUrl":"https://example.org"}`, apiKey: "secret", wantStatus: http.StatusOK},
		{name: "statistics", method: http.MethodGet, target: "/NDI/statistics", apiKey: "secret", wantStatus: http.StatusOK, wantBody: `[{"amount":3,"userAgent":null,"referer":null}]`},
		{name: "statistics without key", method: http.MethodGet, target: "/NDI/statistics", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer()

			resp, body := srv.do(t, tt.method, tt.target, tt.body, tt.apiKey)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, body)
			}
			assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
		})
	}
}

func TestServer_DeniedCreateNeverReachesService(t *testing.T) {
	srv := newTestServer()

	resp, _ := srv.do(t, http.MethodPost, "/create", `{"targetUrl":"https://example.com"}`, "")

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, srv.links.created)
}

func TestServer_RedirectRecordsStatistic(t *testing.T) {
	srv := newTestServer()

	resp, _ := srv.do(t, http.MethodGet, "/NDI", "", "")

	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://example.com", resp.Header.Get("Location"))
	require.Len(t, srv.stats.recorded, 1)
	assert.Equal(t, "NDI", srv.stats.recorded[0].LinkID)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv := newTestServer()

	srv.do(t, http.MethodPost, "/create", `{"targetUrl":"https://example.com"}`, "")
	srv.do(t, http.MethodGet, "/health", "", "")

	resp, body := srv.do(t, http.MethodGet, "/metrics", "", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `unauthenticated_calls_total{uri="/create"} 1`)
	assert.Contains(t, body, `http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
