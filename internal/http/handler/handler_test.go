package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sifan077/shortener/internal/app/model"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/service"
	infraprom "github.com/sifan077/shortener/internal/infra/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLinkService struct {
	createFn func(ctx context.Context, targetURL string) (*model.Link, error)
	getFn    func(ctx context.Context, id string) (*model.Link, error)
	updateFn func(ctx context.Context, id, targetURL string) (*model.Link, error)
}

func (f *fakeLinkService) CreateLink(ctx context.Context, targetURL string) (*model.Link, error) {
	if f.createFn != nil {
		return f.createFn(ctx, targetURL)
	}
	return &model.Link{ID: "abc", TargetURL: targetURL}, nil
}

func (f *fakeLinkService) GetLink(ctx context.Context, id string) (*model.Link, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return nil, repository.ErrLinkNotFound
}

func (f *fakeLinkService) UpdateLink(ctx context.Context, id, targetURL string) (*model.Link, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, targetURL)
	}
	return &model.Link{ID: id, TargetURL: targetURL}, nil
}

type fakeStatistics struct {
	mu       sync.Mutex
	recorded []model.LinkStatistic
	countFn  func(ctx context.Context, linkID string) ([]model.CountedLinkStatistics, error)
}

func (f *fakeStatistics) RecordAsync(stat model.LinkStatistic) {
	f.mu.Lock()
	f.recorded = append(f.recorded, stat)
	f.mu.Unlock()
}

func (f *fakeStatistics) CountByLink(ctx context.Context, linkID string) ([]model.CountedLinkStatistics, error) {
	if f.countFn != nil {
		return f.countFn(ctx, linkID)
	}
	return nil, nil
}

func (f *fakeStatistics) Wait(ctx context.Context) error { return nil }

func (f *fakeStatistics) all() []model.LinkStatistic {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LinkStatistic(nil), f.recorded...)
}

func newTestApp(links service.LinkService, stats service.StatisticsService, metrics *infraprom.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})

	passthrough := func(c *fiber.Ctx) error { return c.Next() }
	NewAPIHandler(APIDeps{LinkService: links, Statistics: stats, Metrics: metrics}).Register(app, passthrough)
	NewRedirectHandler(RedirectDeps{LinkService: links, Statistics: stats, Metrics: metrics}).Register(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func TestRedirect_Found(t *testing.T) {
	links := &fakeLinkService{
		getFn: func(ctx context.Context, id string) (*model.Link, error) {
			return &model.Link{ID: id, TargetURL: "https://example.com/page"}, nil
		},
	}
	stats := &fakeStatistics{}
	app := newTestApp(links, stats, infraprom.NewMetrics())

	req := httptest.NewRequest(http.MethodGet, "/abc", nil)
	req.Header.Set("Referer", "https://news.example")
	req.Header.Set("User-Agent", "curl/8.0")
	resp, _ := doRequest(t, app, req)

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://example.com/page", resp.Header.Get("Location"))
	assert.Equal(t, "public, max-age=300, s-maxage=300, stale-while-revalidate=300, stale-if-error=300",
		resp.Header.Get("Cache-Control"))

	recorded := stats.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, "abc", recorded[0].LinkID)
	require.NotNil(t, recorded[0].Referer)
	assert.Equal(t, "https://news.example", *recorded[0].Referer)
	require.NotNil(t, recorded[0].UserAgent)
	assert.Equal(t, "curl/8.0", *recorded[0].UserAgent)
}

func TestRedirect_AbsentHeadersRecordedAsNil(t *testing.T) {
	links := &fakeLinkService{
		getFn: func(ctx context.Context, id string) (*model.Link, error) {
			return &model.Link{ID: id, TargetURL: "https://example.com"}, nil
		},
	}
	stats := &fakeStatistics{}
	app := newTestApp(links, stats, infraprom.NewMetrics())

	req := httptest.NewRequest(http.MethodGet, "/abc", nil)
	// An empty value keeps net/http from sending its default User-Agent.
	req.Header.Set("User-Agent", "")
	resp, _ := doRequest(t, app, req)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)

	recorded := stats.all()
	require.Len(t, recorded, 1)
	assert.Nil(t, recorded[0].Referer)
	assert.Nil(t, recorded[0].UserAgent)
}

func TestRedirect_NotFoundIsOK(t *testing.T) {
	stats := &fakeStatistics{}
	app := newTestApp(&fakeLinkService{}, stats, infraprom.NewMetrics())

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Not found", body)
	assert.Empty(t, resp.Header.Get("Location"))
	assert.Empty(t, stats.all())
}

func TestRedirect_StoreTimeout(t *testing.T) {
	links := &fakeLinkService{
		getFn: func(ctx context.Context, id string) (*model.Link, error) {
			return nil, fmt.Errorf("get link: %w", repository.ErrTimeout)
		},
	}
	metrics := infraprom.NewMetrics()
	stats := &fakeStatistics{}
	app := newTestApp(links, stats, metrics)

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/abc", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"internal server error"}`, body)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestErrors.WithLabelValues("redirect", "timeout")))
	assert.Empty(t, stats.all())
}

func TestHealth(t *testing.T) {
	app := newTestApp(&fakeLinkService{}, &fakeStatistics{}, nil)

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Service healthy", body)
}

func TestCreateLink(t *testing.T) {
	var got string
	links := &fakeLinkService{
		createFn: func(ctx context.Context, targetURL string) (*model.Link, error) {
			got = targetURL
			return &model.Link{ID: "NDI", TargetURL: targetURL}, nil
		},
	}
	app := newTestApp(links, &fakeStatistics{}, nil)

	resp, body := doRequest(t, app, jsonRequest(http.MethodPost, "/create", `{"targetUrl":"https://example.com/x"}`))

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"id":"NDI","targetUrl":"https://example.com/x"}`, body)
	assert.Equal(t, "https://example.com/x", got)
}

func TestCreateLink_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "malformed url", body: `{"targetUrl":"not a url"}`, wantStatus: http.StatusConflict, wantBody: `{"error":"url malformed"}`},
		{name: "missing url", body: `{}`, wantStatus: http.StatusConflict, wantBody: `{"error":"url malformed"}`},
		{name: "invalid json", body: `{"targetUrl":`, wantStatus: http.StatusBadRequest, wantBody: `{"error":"invalid request body"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := &fakeLinkService{
				createFn: func(ctx context.Context, targetURL string) (*model.Link, error) {
					t.Error("link service must not be called")
					return nil, nil
				},
			}
			app := newTestApp(links, &fakeStatistics{}, nil)

			resp, body := doRequest(t, app, jsonRequest(http.MethodPost, "/create", tt.body))

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.JSONEq(t, tt.wantBody, body)
		})
	}
}

func TestCreateLink_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
		wantKind   string
	}{
		{name: "invalid url", err: service.ErrInvalidURL, wantStatus: http.StatusConflict, wantBody: `{"error":"url malformed"}`},
		{name: "conflict exhausted", err: fmt.Errorf("create link: %w", repository.ErrConflict), wantStatus: http.StatusInternalServerError, wantBody: `{"error":"internal server error"}`, wantKind: "conflict"},
		{name: "backend", err: fmt.Errorf("create link: %w", repository.ErrBackend), wantStatus: http.StatusInternalServerError, wantBody: `{"error":"internal server error"}`, wantKind: "backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := &fakeLinkService{
				createFn: func(ctx context.Context, targetURL string) (*model.Link, error) {
					return nil, tt.err
				},
			}
			metrics := infraprom.NewMetrics()
			app := newTestApp(links, &fakeStatistics{}, metrics)

			resp, body := doRequest(t, app, jsonRequest(http.MethodPost, "/create", `{"targetUrl":"https://example.com"}`))

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.JSONEq(t, tt.wantBody, body)
			if tt.wantKind != "" {
				assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestErrors.WithLabelValues("create_link", tt.wantKind)))
			}
		})
	}
}

func TestUpdateLink(t *testing.T) {
	var gotID, gotURL string
	links := &fakeLinkService{
		updateFn: func(ctx context.Context, id, targetURL string) (*model.Link, error) {
			gotID, gotURL = id, targetURL
			return &model.Link{ID: id, TargetURL: targetURL}, nil
		},
	}
	app := newTestApp(links, &fakeStatistics{}, nil)

	resp, body := doRequest(t, app, jsonRequest(http.MethodPatch, "/abc", `{"targetUrl":"https://example.org"}`))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"abc","targetUrl":"https://example.org"}`, body)
	assert.Equal(t, "abc", gotID)
	assert.Equal(t, "https://example.org", gotURL)
}

func TestUpdateLink_NotFound(t *testing.T) {
	links := &fakeLinkService{
		updateFn: func(ctx context.Context, id, targetURL string) (*model.Link, error) {
			return nil, fmt.Errorf("update link: %w", repository.ErrLinkNotFound)
		},
	}
	app := newTestApp(links, &fakeStatistics{}, nil)

	resp, body := doRequest(t, app, jsonRequest(http.MethodPatch, "/nope", `{"targetUrl":"https://example.org"}`))

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"link not found"}`, body)
}

func TestUpdateLink_Malformed(t *testing.T) {
	links := &fakeLinkService{
		updateFn: func(ctx context.Context, id, targetURL string) (*model.Link, error) {
			t.Error("link service must not be called")
			return nil, nil
		},
	}
	app := newTestApp(links, &fakeStatistics{}, nil)

	resp, body := doRequest(t, app, jsonRequest(http.MethodPatch, "/abc", `{"targetUrl":"::"}`))

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.JSONEq(t, `{"error":"url malformed"}`, body)
}

func TestGetLinkStatistics(t *testing.T) {
	ua := "curl/8.0"
	stats := &fakeStatistics{
		countFn: func(ctx context.Context, linkID string) ([]model.CountedLinkStatistics, error) {
			assert.Equal(t, "abc", linkID)
			return []model.CountedLinkStatistics{
				{Amount: 2, UserAgent: &ua},
				{Amount: 1},
			}, nil
		},
	}
	app := newTestApp(&fakeLinkService{}, stats, nil)

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/abc/statistics", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[
		{"amount":2,"userAgent":"curl/8.0","referer":null},
		{"amount":1,"userAgent":null,"referer":null}
	]`, body)
}

func TestGetLinkStatistics_Empty(t *testing.T) {
	app := newTestApp(&fakeLinkService{}, &fakeStatistics{}, nil)

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/abc/statistics", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, body)
}

func TestGetLinkStatistics_StoreError(t *testing.T) {
	stats := &fakeStatistics{
		countFn: func(ctx context.Context, linkID string) ([]model.CountedLinkStatistics, error) {
			return nil, fmt.Errorf("count statistics: %w", repository.ErrTimeout)
		},
	}
	app := newTestApp(&fakeLinkService{}, stats, nil)

	resp, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/abc/statistics", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"internal server error"}`, body)
}
