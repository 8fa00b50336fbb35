package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/middleware"
	"mdl-rewrite/internal/service/query"
)

type rewriteRequest struct {
	SQL     string `json:"sql"`
	Catalog string `json:"catalog,omitempty"`
	Schema  string `json:"schema,omitempty"`
	MaxRows int    `json:"max_rows,omitempty"`
}

type rewriteResponse struct {
	SQL          string `json:"sql"`
	ExpandedSQL  string `json:"expanded_sql,omitempty"`
	RewrittenSQL string `json:"rewritten_sql"`
}

type queryResponse struct {
	RewrittenSQL string          `json:"rewritten_sql"`
	Columns      []string        `json:"columns"`
	Rows         [][]interface{} `json:"rows"`
	RowCount     int             `json:"row_count"`
	Truncated    bool            `json:"truncated"`
	DurationMs   int64           `json:"duration_ms"`
}

type queryLogEntry struct {
	ID           int64     `json:"id"`
	Principal    string    `json:"principal"`
	SQL          string    `json:"sql"`
	RewrittenSQL *string   `json:"rewritten_sql,omitempty"`
	Status       string    `json:"status"`
	ErrorCode    *string   `json:"error_code,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	RowsReturned *int64    `json:"rows_returned,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrValidation("invalid JSON body: %v", err)
	}
	return nil
}

func (s *Server) queryRequest(r *http.Request, body rewriteRequest) query.Request {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	return query.Request{
		SQL:       body.SQL,
		Catalog:   body.Catalog,
		Schema:    body.Schema,
		Principal: principal.Name,
		MaxRows:   body.MaxRows,
	}
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var body rewriteRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.queries.WithLogger(s.requestLogger(r)).Rewrite(r.Context(), s.queryRequest(r, body))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := rewriteResponse{SQL: res.OriginalSQL, RewrittenSQL: res.RewrittenSQL}
	if res.ExpandedSQL != res.OriginalSQL {
		out.ExpandedSQL = res.ExpandedSQL
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body rewriteRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.queries.WithLogger(s.requestLogger(r)).Execute(r.Context(), s.queryRequest(r, body))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		RewrittenSQL: res.RewrittenSQL,
		Columns:      res.Columns,
		Rows:         res.Rows,
		RowCount:     res.RowCount,
		Truncated:    res.Truncated,
		DurationMs:   res.Duration.Milliseconds(),
	})
}

func (s *Server) handleQueryHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.queries.History(r.Context(), limitParam(r, 100))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]queryLogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, queryLogEntry{
			ID:           e.ID,
			Principal:    e.Principal,
			SQL:          e.OriginalSQL,
			RewrittenSQL: e.RewrittenSQL,
			Status:       e.Status,
			ErrorCode:    e.ErrorCode,
			ErrorMessage: e.ErrorMessage,
			DurationMs:   e.DurationMs,
			RowsReturned: e.RowsReturned,
			CreatedAt:    e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// limitParam reads the limit query parameter. The OpenAPI validator has
// already checked its range.
func limitParam(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
