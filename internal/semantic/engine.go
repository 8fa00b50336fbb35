package semantic

import (
	"context"
	"errors"
	"log/slog"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
)

// Engine runs rewrites and renders against a catalog and logs failures that
// are not the caller's fault.
type Engine struct {
	logger *slog.Logger
}

// NewEngine returns an Engine logging to logger, or to the current
// slog.Default when logger is nil.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// WithLogger returns a copy of e that logs to logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	cp := *e
	cp.logger = logger
	return &cp
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// Rewrite replaces every model, metric and roll_up reference in stmt with
// SQL over physical tables. The input statement is not modified. On error
// no statement is returned.
func (e *Engine) Rewrite(ctx context.Context, stmt duckdbsql.Stmt, session SessionContext, cat domain.Catalog) (duckdbsql.Stmt, error) {
	out, err := rewrite(ctx, stmt, session, cat)
	if err != nil {
		e.logFailure("rewrite", err)
		return nil, err
	}
	return out, nil
}

// RewriteSQL parses query, rewrites it and formats the result.
func (e *Engine) RewriteSQL(ctx context.Context, query string, session SessionContext, cat domain.Catalog) (string, error) {
	stmt, err := duckdbsql.Parse(query)
	if err != nil {
		return "", domain.ErrRewrite(domain.CodeUnsupportedExpression, "cannot parse query").Wrap(err)
	}
	out, err := e.Rewrite(ctx, stmt, session, cat)
	if err != nil {
		return "", err
	}
	return duckdbsql.Format(out), nil
}

// RenderModel renders the model called name.
func (e *Engine) RenderModel(cat domain.Catalog, name string) (*RelationInfo, error) {
	info, err := RenderModel(cat, name)
	e.logFailure("render model", err)
	return info, err
}

// RenderMetric renders the metric called name.
func (e *Engine) RenderMetric(cat domain.Catalog, name string) (*RelationInfo, error) {
	info, err := RenderMetric(cat, name)
	e.logFailure("render metric", err)
	return info, err
}

// Render renders the model or metric called name.
func (e *Engine) Render(cat domain.Catalog, name string) (*RelationInfo, error) {
	info, err := Render(cat, name)
	e.logFailure("render", err)
	return info, err
}

// RenderAll renders every model and metric of cat.
func (e *Engine) RenderAll(ctx context.Context, cat domain.Catalog) (map[string]*RelationInfo, error) {
	out, err := RenderAll(ctx, cat)
	e.logFailure("render all", err)
	return out, err
}

func (e *Engine) logFailure(op string, err error) {
	if err == nil || domain.IsUserError(err) || errors.Is(err, context.Canceled) {
		return
	}
	var rwErr *domain.RewriteError
	if errors.As(err, &rwErr) {
		e.log().Error("semantic "+op+" failed",
			"code", rwErr.Code, "model", rwErr.Model, "column", rwErr.Column, "error", err)
		return
	}
	e.log().Error("semantic "+op+" failed", "error", err)
}

var defaultEngine = NewEngine(nil)

// Rewrite rewrites stmt with an engine logging to slog.Default.
func Rewrite(ctx context.Context, stmt duckdbsql.Stmt, session SessionContext, cat domain.Catalog) (duckdbsql.Stmt, error) {
	return defaultEngine.Rewrite(ctx, stmt, session, cat)
}

// RewriteSQL parses, rewrites and formats query with an engine logging to
// slog.Default.
func RewriteSQL(ctx context.Context, query string, session SessionContext, cat domain.Catalog) (string, error) {
	return defaultEngine.RewriteSQL(ctx, query, session, cat)
}
