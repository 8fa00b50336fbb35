// Package query rewrites semantic SQL and runs it against the compute
// engine, recording each execution in the query log.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mdl-rewrite/internal/compute"
	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/macro"
	"mdl-rewrite/internal/semantic"
)

// DefaultMaxRows caps the rows returned by Execute when no limit is set.
const DefaultMaxRows = 10000

// CatalogSource returns the catalog in effect.
type CatalogSource func() domain.Catalog

// Executor runs SQL against a database.
type Executor interface {
	Query(ctx context.Context, query string, maxRows int) (*compute.Result, error)
}

// Request is a query sent by a client.
type Request struct {
	SQL       string
	Catalog   string // session catalog, defaults to the manifest's
	Schema    string // session schema, defaults to the manifest's
	Principal string
	MaxRows   int
}

// RewriteResult is the outcome of a rewrite.
type RewriteResult struct {
	OriginalSQL  string
	ExpandedSQL  string // after macro expansion, equal to OriginalSQL without templates
	RewrittenSQL string
}

// ExecuteResult is the outcome of an execution.
type ExecuteResult struct {
	RewriteResult
	*compute.Result
	Duration time.Duration
}

// Service rewrites and executes queries.
type Service struct {
	engine   *semantic.Engine
	catalog  CatalogSource
	executor Executor
	log      domain.QueryLogRepository
	timeout  time.Duration
	maxRows  int
	session  semantic.SessionContext // defaults for requests that name none
	logger   *slog.Logger
}

// NewService creates a Service. executor and queryLog may be nil; without an
// executor Execute fails and without a log nothing is recorded.
func NewService(engine *semantic.Engine, catalog CatalogSource, executor Executor, queryLog domain.QueryLogRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:   engine,
		catalog:  catalog,
		executor: executor,
		log:      queryLog,
		maxRows:  DefaultMaxRows,
		logger:   logger,
	}
}

// SetTimeout bounds each execution. Zero disables the bound.
func (s *Service) SetTimeout(d time.Duration) { s.timeout = d }

// SetMaxRows sets the default row limit for Execute.
func (s *Service) SetMaxRows(n int) { s.maxRows = n }

// SetDefaultSession sets the catalog and schema used by requests that leave
// them empty. Empty values fall back to the manifest's.
func (s *Service) SetDefaultSession(catalog, schema string) {
	s.session = semantic.SessionContext{Catalog: catalog, Schema: schema}
}

// WithLogger returns a copy of s whose engine and service log to logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	cp := *s
	cp.logger = logger
	cp.engine = s.engine.WithLogger(logger)
	return &cp
}

// Rewrite expands macros in req.SQL and rewrites the result into SQL over
// physical tables.
func (s *Service) Rewrite(ctx context.Context, req Request) (*RewriteResult, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, domain.ErrValidation("sql query is required")
	}
	cat := s.catalog()

	expanded, err := macro.Render(req.SQL, cat.ListMacros())
	if err != nil {
		return nil, err
	}
	session := semantic.SessionContext{Catalog: req.Catalog, Schema: req.Schema}
	if session.Catalog == "" {
		session.Catalog = s.session.Catalog
	}
	if session.Schema == "" {
		session.Schema = s.session.Schema
	}
	out, err := s.engine.RewriteSQL(ctx, expanded, session, cat)
	if err != nil {
		return nil, err
	}
	return &RewriteResult{OriginalSQL: req.SQL, ExpandedSQL: expanded, RewrittenSQL: out}, nil
}

// Execute rewrites req.SQL, runs it and records the outcome in the query
// log. An empty query is rejected without being recorded.
func (s *Service) Execute(ctx context.Context, req Request) (*ExecuteResult, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, domain.ErrValidation("sql query is required")
	}
	if s.executor == nil {
		return nil, errors.New("no compute engine is configured")
	}

	start := time.Now()
	rw, err := s.Rewrite(ctx, req)
	if err != nil {
		s.record(ctx, req, nil, nil, err, time.Since(start))
		return nil, err
	}

	maxRows := req.MaxRows
	if maxRows <= 0 {
		maxRows = s.maxRows
	}
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.executor.Query(runCtx, rw.RewrittenSQL, maxRows)
	elapsed := time.Since(start)
	if err != nil {
		err = s.executionError(runCtx, err)
		s.record(ctx, req, &rw.RewrittenSQL, nil, err, elapsed)
		return nil, err
	}
	s.record(ctx, req, &rw.RewrittenSQL, res, nil, elapsed)
	return &ExecuteResult{RewriteResult: *rw, Result: res, Duration: elapsed}, nil
}

// History returns the newest query log entries.
func (s *Service) History(ctx context.Context, limit int) ([]domain.QueryLogEntry, error) {
	if s.log == nil {
		return []domain.QueryLogEntry{}, nil
	}
	return s.log.List(ctx, limit)
}

// ErrTimeout is returned when an execution exceeds the configured timeout.
var ErrTimeout = errors.New("query timed out")

func (s *Service) executionError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// The database rejects the SQL the caller's query produced.
	return domain.ErrValidation("query failed: %v", err)
}

func (s *Service) record(ctx context.Context, req Request, rewritten *string, res *compute.Result, err error, elapsed time.Duration) {
	if s.log == nil {
		return
	}
	principal := req.Principal
	if principal == "" {
		principal = "anonymous"
	}
	entry := &domain.QueryLogEntry{
		Principal:    principal,
		OriginalSQL:  req.SQL,
		RewrittenSQL: rewritten,
		Status:       domain.StatusSucceeded,
		DurationMs:   elapsed.Milliseconds(),
	}
	if err != nil {
		entry.Status = domain.StatusFailed
		code := errorCode(err)
		msg := err.Error()
		entry.ErrorCode = &code
		entry.ErrorMessage = &msg
	}
	if res != nil {
		n := int64(res.RowCount)
		entry.RowsReturned = &n
	}
	// Recording is best effort and must not fail the query.
	if err := s.log.Insert(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("record query log entry", "error", err)
	}
}

// errorCode classifies err for the query log.
func errorCode(err error) string {
	if code := domain.RewriteCodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	}
	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		return "EXECUTION_ERROR"
	}
	return string(domain.CodeInternal)
}
