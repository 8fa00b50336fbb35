package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"mdl-rewrite/internal/macro"
	"mdl-rewrite/internal/semantic"
)

type relationResponse struct {
	Name            string   `json:"name"`
	Kind            string   `json:"kind"`
	SQL             string   `json:"sql"`
	DependsOn       []string `json:"depends_on"`
	RequiredObjects []string `json:"required_objects"`
}

type macroRequest struct {
	Template string `json:"template"`
	Render   bool   `json:"render,omitempty"`
}

type catalogSummary struct {
	Location      string `json:"location"`
	Catalog       string `json:"catalog"`
	Schema        string `json:"schema"`
	Models        int    `json:"models"`
	Relationships int    `json:"relationships"`
	Metrics       int    `json:"metrics"`
	Macros        int    `json:"macros"`
}

func relationToAPI(info *semantic.RelationInfo) relationResponse {
	out := relationResponse{
		Name:            info.Name,
		Kind:            string(info.Kind),
		SQL:             info.SQL,
		DependsOn:       info.DependsOn,
		RequiredObjects: info.RequiredObjects,
	}
	if out.DependsOn == nil {
		out.DependsOn = []string{}
	}
	if out.RequiredObjects == nil {
		out.RequiredObjects = []string{}
	}
	return out
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, err := s.engine.WithLogger(s.requestLogger(r)).Render(s.holder.Current(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, relationToAPI(info))
}

func (s *Server) handleRenderAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.engine.WithLogger(s.requestLogger(r)).RenderAll(r.Context(), s.holder.Current())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]relationResponse, 0, len(all))
	for _, info := range all {
		out = append(out, relationToAPI(info))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == string(semantic.KindModel)
		}
		return out[i].Name < out[j].Name
	})
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleMacro(w http.ResponseWriter, r *http.Request) {
	var body macroRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	macros := s.holder.Current().ListMacros()
	expand := macro.Process
	if body.Render {
		expand = macro.Render
	}
	out, err := expand(body.Template, macros)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	cat, err := s.holder.Reload(r.Context())
	if err != nil {
		s.writeErrorStatus(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	if s.refresher != nil {
		if err := s.refresher.Reload(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, catalogSummary{
		Location:      s.holder.Location(),
		Catalog:       cat.CatalogName(),
		Schema:        cat.SchemaName(),
		Models:        len(cat.ListModels()),
		Relationships: len(cat.ListRelationships()),
		Metrics:       len(cat.ListMetrics()),
		Macros:        len(cat.ListMacros()),
	})
}
