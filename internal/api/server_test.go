package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdl-rewrite/internal/compute"
	"mdl-rewrite/internal/config"
	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/manifest"
	"mdl-rewrite/internal/middleware"
	"mdl-rewrite/internal/semantic"
	"mdl-rewrite/internal/service/query"
	"mdl-rewrite/internal/service/refresh"
	"mdl-rewrite/internal/testutil"
)

type testEnv struct {
	handler  http.Handler
	queryLog *testutil.MockQueryLogRepo
}

func newTestEnv(t *testing.T, withRefresh bool, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	holder, err := manifest.NewHolder(ctx, manifest.NewFetcher(config.StorageConfig{}), testutil.TPCHManifestPath(), logger)
	require.NoError(t, err)

	engine := semantic.NewEngine(logger)
	exec := compute.NewLocalExecutor(testutil.OpenTPCH(t))
	queryLog := &testutil.MockQueryLogRepo{}
	queries := query.NewService(engine, func() domain.Catalog { return holder.Current() }, exec, queryLog, logger)

	var refresher *refresh.Refresher
	if withRefresh {
		refresher = refresh.NewRefresher(engine, holder.Current, exec, &testutil.MockRefreshRunRepo{}, logger)
	}

	srv, err := NewServer(ctx, holder, engine, queries, refresher, logger)
	require.NoError(t, err)
	h, err := srv.Handler(ctx, opts)
	require.NoError(t, err)
	return &testEnv{handler: h, queryLog: queryLog}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/v1/rewrite"))
	assert.NotNil(t, doc.Paths.Find("/v1/render/{name}"))
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t, false, Options{Authenticator: middleware.NewAuthenticator(nil, config.AuthConfig{APIKeys: []string{"k"}}, nil)})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = env.do(t, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"openapi":"3.0.3"`)
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, false, Options{Authenticator: middleware.NewAuthenticator(nil, config.AuthConfig{APIKeys: []string{"secret-key"}}, nil)})

	rec := env.do(t, http.MethodGet, "/v1/render/Customer", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/render/Customer", "", "X-API-Key", "secret-key")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/ui", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRewrite(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantReason string
		check      func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name:       "success",
			body:       `{"sql": "SELECT custkey, buy_item_count FROM Customer WHERE custkey = 370"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				t.Helper()
				out := decodeBody[rewriteResponse](t, rec)
				assert.Contains(t, out.RewrittenSQL, `) AS "Customer"`)
				assert.Empty(t, out.ExpandedSQL)
			},
		},
		{
			name:       "session_schema",
			body:       `{"sql": "SELECT custkey FROM tpch.Customer", "schema": "tpch"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "expands_macros",
			body:       `{"sql": "SELECT {{ addOne(custkey) }} FROM Customer"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				t.Helper()
				out := decodeBody[rewriteResponse](t, rec)
				assert.NotEmpty(t, out.ExpandedSQL)
				assert.NotContains(t, out.RewrittenSQL, "{{")
			},
		},
		{
			name:       "to_many_path",
			body:       `{"sql": "SELECT orders.totalprice FROM Customer"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantReason: "UNSUPPORTED_EXPRESSION",
		},
		{
			name:       "unknown_metric",
			body:       `{"sql": "SELECT * FROM roll_up(Nope, order_date, YEAR)"}`,
			wantStatus: http.StatusNotFound,
			wantReason: "NOT_FOUND",
		},
		{
			name:       "missing_sql",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown_field",
			body:       `{"sql": "SELECT 1", "dialect": "trino"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not_json",
			body:       `SELECT 1`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/rewrite", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				body := decodeBody[errorBody](t, rec)
				assert.Equal(t, tt.wantStatus, body.Code)
				assert.Equal(t, tt.wantReason, body.Reason)
				assert.NotEmpty(t, body.Message)
			}
			if tt.check != nil {
				tt.check(t, rec)
			}
		})
	}
}

func TestRewrite_RequiresJSONContentType(t *testing.T) {
	env := newTestEnv(t, false, Options{})
	req := httptest.NewRequest(http.MethodPost, "/v1/rewrite", strings.NewReader(`{"sql":"SELECT 1"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodPost, "/v1/query", `{"sql": "SELECT custkey, totalprice FROM Customer ORDER BY custkey", "max_rows": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[queryResponse](t, rec)
	assert.Equal(t, []string{"custkey", "totalprice"}, out.Columns)
	assert.Equal(t, 2, out.RowCount)
	assert.True(t, out.Truncated)

	rec = env.do(t, http.MethodPost, "/v1/query", `{"sql": "SELECT * FROM missing_table"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/query", `{"sql": "SELECT 1", "max_rows": 0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, "max_rows below minimum")

	rec = env.do(t, http.MethodGet, "/v1/query/history?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[struct {
		Data []queryLogEntry `json:"data"`
	}](t, rec)
	require.Len(t, history.Data, 1)
	assert.Equal(t, domain.StatusFailed, history.Data[0].Status)
	assert.Equal(t, "anonymous", history.Data[0].Principal)

	rec = env.do(t, http.MethodGet, "/v1/query/history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRender(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodGet, "/v1/render/customer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rel := decodeBody[relationResponse](t, rec)
	assert.Equal(t, "Customer", rel.Name)
	assert.Equal(t, "model", rel.Kind)
	assert.NotEmpty(t, rel.SQL)
	assert.NotNil(t, rel.DependsOn)

	rec = env.do(t, http.MethodGet, "/v1/render/Nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody[errorBody](t, rec).Reason)

	rec = env.do(t, http.MethodGet, "/v1/render", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[struct {
		Data []relationResponse `json:"data"`
	}](t, rec)
	require.Len(t, all.Data, 5)
	assert.Equal(t, "Customer", all.Data[0].Name)
	assert.Equal(t, "metric", all.Data[4].Kind)
}

func TestMacro(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodPost, "/v1/macro", `{"template": "{{ passMacro(1, addOne) }}"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "{{addOne(1)}} + 4", decodeBody[map[string]string](t, rec)["result"])

	rec = env.do(t, http.MethodPost, "/v1/macro", `{"template": "{{ passMacro(1, addOne) }}", "render": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, decodeBody[map[string]string](t, rec)["result"], "{{")

	rec = env.do(t, http.MethodPost, "/v1/macro", `{"template": "{{ passMacro(1) }}"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "MALFORMED_TEMPLATE", decodeBody[errorBody](t, rec).Reason)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t, true, Options{})

	rec := env.do(t, http.MethodGet, "/v1/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Data []cachedMetricResponse `json:"data"`
	}](t, rec)
	require.Len(t, list.Data, 2)
	assert.NotNil(t, list.Data[0].NextRefresh)
	assert.Nil(t, list.Data[0].LastRun)

	rec = env.do(t, http.MethodPost, "/v1/refresh/Revenue", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decodeBody[refreshRunResponse](t, rec)
	assert.Equal(t, domain.StatusSucceeded, run.Status)
	require.NotNil(t, run.RowCount)
	assert.Equal(t, int64(3), *run.RowCount)

	rec = env.do(t, http.MethodGet, "/v1/refresh", "")
	list = decodeBody[struct {
		Data []cachedMetricResponse `json:"data"`
	}](t, rec)
	require.NotNil(t, list.Data[0].LastRun)
	assert.Equal(t, "Revenue", list.Data[0].LastRun.Metric)

	rec = env.do(t, http.MethodGet, "/v1/refresh/revenue/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[struct {
		Data []refreshRunResponse `json:"data"`
	}](t, rec)
	assert.Len(t, history.Data, 1)

	rec = env.do(t, http.MethodPost, "/v1/refresh/Nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/refresh/Nope/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh_Disabled(t *testing.T) {
	env := newTestEnv(t, false, Options{})

	rec := env.do(t, http.MethodPost, "/v1/refresh/Revenue", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Data []cachedMetricResponse `json:"data"`
	}](t, rec)
	assert.Len(t, list.Data, 2)
}

func TestReload(t *testing.T) {
	env := newTestEnv(t, true, Options{})

	rec := env.do(t, http.MethodPost, "/v1/reload", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[catalogSummary](t, rec)
	assert.Equal(t, 3, summary.Models)
	assert.Equal(t, 2, summary.Relationships)
	assert.Equal(t, 2, summary.Metrics)
	assert.Equal(t, 3, summary.Macros)
	assert.Equal(t, "memory", summary.Catalog)
}

func TestUI(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	rec := env.do(t, http.MethodGet, "/ui", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Models (3)")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, false, Options{})
	rec := env.do(t, http.MethodGet, "/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rewrite_user", domain.ErrRewrite(domain.CodeRelationshipNotFound, "x"), http.StatusUnprocessableEntity},
		{"rewrite_not_found", domain.ErrRewrite(domain.CodeNotFound, "x"), http.StatusNotFound},
		{"rewrite_internal", domain.ErrRewrite(domain.CodeInternal, "x"), http.StatusInternalServerError},
		{"not_found", domain.ErrNotFound("x"), http.StatusNotFound},
		{"validation", domain.ErrValidation("x"), http.StatusBadRequest},
		{"conflict", domain.ErrConflict("x"), http.StatusConflict},
		{"timeout", query.ErrTimeout, http.StatusGatewayTimeout},
		{"canceled", context.Canceled, http.StatusServiceUnavailable},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatusFromError(tt.err))
		})
	}
}
