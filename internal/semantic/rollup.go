package semantic

import (
	"strings"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/duckdbsql"
)

// rollupFunction is the table function that rolls a metric up to a date part.
const rollupFunction = "roll_up"

// MetricRollupInfo is a resolved roll_up(metric, grain, DATE_PART) call.
type MetricRollupInfo struct {
	Metric    *domain.Metric
	TimeGrain *domain.TimeGrain
	DatePart  domain.DatePart
}

// RollupAnalysis maps each roll_up table function of a statement to its
// resolution.
type RollupAnalysis map[*duckdbsql.FuncTable]*MetricRollupInfo

// AnalyzeRollups resolves every roll_up table function in sel against cat.
// Names in the call may be written as identifiers or string literals.
func AnalyzeRollups(sel *duckdbsql.SelectStmt, cat domain.Catalog) (RollupAnalysis, error) {
	out := make(RollupAnalysis)
	var firstErr error
	duckdbsql.RewriteTableRefs(sel, func(ref duckdbsql.TableRef, _ *duckdbsql.Scope) duckdbsql.TableRef {
		ft, ok := ref.(*duckdbsql.FuncTable)
		if !ok || firstErr != nil || !isRollup(ft) {
			return ref
		}
		info, err := analyzeRollup(ft.Func, cat)
		if err != nil {
			firstErr = err
			return ref
		}
		out[ft] = info
		return ref
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func isRollup(ft *duckdbsql.FuncTable) bool {
	return ft.Func != nil && ft.Func.Schema == "" && strings.EqualFold(ft.Func.Name, rollupFunction)
}

func analyzeRollup(fc *duckdbsql.FuncCall, cat domain.Catalog) (*MetricRollupInfo, error) {
	if len(fc.Args) != 3 || fc.Star {
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
			"%s takes a metric, a time grain and a date part, got %d arguments", rollupFunction, len(fc.Args))
	}
	var args [3]string
	for i, a := range fc.Args {
		name, ok := rollupArg(a)
		if !ok {
			return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
				"argument %d of %s must be a name, got %s", i+1, rollupFunction, duckdbsql.FormatExpr(a))
		}
		args[i] = name
	}

	mt, ok := cat.Metric(args[0])
	if !ok {
		return nil, domain.ErrRewrite(domain.CodeNotFound, "metric %s does not exist", args[0])
	}
	grain := mt.TimeGrain(args[1])
	if grain == nil {
		return nil, domain.ErrRewrite(domain.CodeNotFound, "metric %s has no time grain %s", mt.Name, args[1]).
			WithModel(mt.Name)
	}
	part, ok := domain.ParseDatePart(args[2])
	if !ok {
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression, "unknown date part %s", args[2]).
			WithModel(mt.Name).WithColumn(grain.Name)
	}
	if !grain.Allows(part) {
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression,
			"time grain %s of metric %s does not support date part %s", grain.Name, mt.Name, part).
			WithModel(mt.Name).WithColumn(grain.Name)
	}
	return &MetricRollupInfo{Metric: mt, TimeGrain: grain, DatePart: part}, nil
}

func rollupArg(e duckdbsql.Expr) (string, bool) {
	switch a := e.(type) {
	case *duckdbsql.ColumnRef:
		if len(a.Parts) == 1 {
			return a.Parts[0], true
		}
	case *duckdbsql.Literal:
		if a.Type == duckdbsql.LiteralString {
			return a.Value, true
		}
	}
	return "", false
}
