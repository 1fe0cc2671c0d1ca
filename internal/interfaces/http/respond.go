package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"budgetwatch/internal/shared/errs"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps the error kind to a status code. Internal errors are
// logged and never echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: err.Error(), Kind: errs.Kind(err)}

	var status int
	switch resp.Kind {
	case "validation":
		status = http.StatusBadRequest
		var ve *errs.ValidationError
		if errors.As(err, &ve) {
			resp.Field = ve.Field
		}
	case "not_found":
		status = http.StatusNotFound
	case "provider":
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		log.Printf("Error handling %s %s: %v", r.Method, r.URL.Path, err)
		resp.Error = "internal error"
	}

	writeJSON(w, status, resp)
}

// pathID parses a positive int64 URL parameter
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Invalid(name, "must be a positive integer")
	}
	return id, nil
}
