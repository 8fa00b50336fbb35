// Package semantic rewrites queries over MDL models and metrics into SQL over
// the physical tables behind them.
//
// The resolver decomposes dotted names into relationship hops, the expander
// inlines calculated fields, and the renderer turns a model or metric into a
// single SELECT. Rewrite ties these together for a whole user statement.
package semantic

import (
	"strings"

	"mdl-rewrite/internal/domain"
)

// Hop is one traversal of a relationship from a model to the model on the
// other side.
type Hop struct {
	Relationship *domain.Relationship
	Column       string // relationship column on From
	From         string
	To           string
	JoinType     domain.JoinType // seen from From
	Forward      bool            // From is Relationship.Models[0]
}

// ExpressionRelationshipInfo is the decomposition of a qualified name into
// the relationship columns it crosses and the parts left on the last model.
// len(RelationshipParts)+len(RemainingParts) == len(QualifiedName) always
// holds.
type ExpressionRelationshipInfo struct {
	QualifiedName     []string
	RelationshipParts []string
	RemainingParts    []string
	Hops              []Hop

	// Model owns RemainingParts. Column is its declared column, or nil for a
	// reference-query column the model does not declare.
	Model  *domain.Model
	Column *domain.Column
}

// BaseModelRelationship returns the first hop, or nil for a local name.
func (i *ExpressionRelationshipInfo) BaseModelRelationship() *Hop {
	if len(i.Hops) == 0 {
		return nil
	}
	return &i.Hops[0]
}

// IsToMany reports whether any hop can fan out.
func (i *ExpressionRelationshipInfo) IsToMany() bool {
	for _, h := range i.Hops {
		if h.JoinType.IsToMany() {
			return true
		}
	}
	return false
}

// Resolve decomposes parts, read on model. Leading parts naming relationship
// columns are consumed greedily; the last part is never consumed, so the
// suffix always names a column on the final model.
func Resolve(cat domain.Catalog, model *domain.Model, parts []string) (*ExpressionRelationshipInfo, error) {
	qualified := strings.Join(parts, ".")
	if len(parts) == 0 {
		return nil, domain.ErrRewrite(domain.CodeInternal, "empty qualified name").WithModel(model.Name)
	}

	info := &ExpressionRelationshipInfo{QualifiedName: parts}
	cur := model
	for i := 0; i < len(parts)-1; i++ {
		col := cur.Column(parts[i])
		if col == nil || !col.IsRelationship() {
			break
		}
		rel, ok := cat.Relationship(col.Relationship)
		if !ok {
			return nil, domain.ErrRewrite(domain.CodeRelationshipNotFound, "relationship %s does not exist", col.Relationship).
				WithModel(cur.Name).WithColumn(qualified).WithRelationship(col.Relationship)
		}
		target, jt, ok := rel.Other(cur.Name)
		if !ok {
			return nil, domain.ErrRewrite(domain.CodeRelationshipNotFound, "relationship %s does not include model %s", rel.Name, cur.Name).
				WithModel(cur.Name).WithColumn(qualified).WithRelationship(rel.Name)
		}
		next, ok := cat.Model(target)
		if !ok {
			return nil, domain.ErrRewrite(domain.CodeRelationshipNotFound, "model %s of relationship %s does not exist", target, rel.Name).
				WithModel(cur.Name).WithColumn(qualified).WithRelationship(rel.Name)
		}
		info.Hops = append(info.Hops, Hop{
			Relationship: rel,
			Column:       col.Name,
			From:         cur.Name,
			To:           next.Name,
			JoinType:     jt,
			Forward:      strings.EqualFold(rel.Models[0], cur.Name),
		})
		cur = next
	}

	n := len(info.Hops)
	info.RelationshipParts = parts[:n]
	info.RemainingParts = parts[n:]
	info.Model = cur

	if len(info.RemainingParts) > 1 {
		return nil, domain.ErrRewrite(domain.CodeRelationshipNotFound, "%s is not a relationship column of model %s", info.RemainingParts[0], cur.Name).
			WithModel(cur.Name).WithColumn(qualified)
	}

	terminal := cur.Column(info.RemainingParts[0])
	switch {
	case terminal == nil && n > 0:
		return nil, domain.ErrRewrite(domain.CodeRelationshipNotFound, "model %s has no column %s", cur.Name, info.RemainingParts[0]).
			WithModel(cur.Name).WithColumn(qualified).WithRelationship(info.Hops[n-1].Relationship.Name)
	case terminal != nil && terminal.IsRelationship():
		return nil, domain.ErrRewrite(domain.CodeUnsupportedExpression, "relationship column %s cannot be used as a value", terminal.Name).
			WithModel(cur.Name).WithColumn(qualified).WithRelationship(terminal.Relationship)
	}
	info.Column = terminal
	return info, nil
}
