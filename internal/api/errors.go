package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/service/query"
)

// errorBody is the JSON error envelope. Reason, Model, Column and
// Relationship are set for rewrite errors.
type errorBody struct {
	Code         int    `json:"code"`
	Message      string `json:"message"`
	Reason       string `json:"reason,omitempty"`
	Model        string `json:"model,omitempty"`
	Column       string `json:"column,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// httpStatusFromError maps domain errors to HTTP status codes.
func httpStatusFromError(err error) int {
	var rwErr *domain.RewriteError
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError

	switch {
	case errors.Is(err, query.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &rwErr):
		switch {
		case rwErr.Code == domain.CodeNotFound:
			return http.StatusNotFound
		case domain.IsUserError(rwErr):
			return http.StatusUnprocessableEntity
		default:
			return http.StatusInternalServerError
		}
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorStatus(w, r, httpStatusFromError(err), err)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	body := errorBody{Code: status, Message: err.Error()}
	var rwErr *domain.RewriteError
	if errors.As(err, &rwErr) {
		body.Reason = string(rwErr.Code)
		body.Model = rwErr.Model
		body.Column = rwErr.Column
		body.Relationship = rwErr.Relationship
	}
	if status >= http.StatusInternalServerError {
		s.requestLogger(r).Error("request failed", "status", status, "error", err)
		if status == http.StatusInternalServerError && rwErr == nil {
			body.Message = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
