// Package admin serves read-only debug endpoints over the subject registry.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/maxpert/herald/diag"
	"github.com/maxpert/herald/registry"
	"github.com/rs/zerolog/log"
)

// collectTimeout bounds how long a request waits for the owner loop.
const collectTimeout = 5 * time.Second

// Collector builds a report of the subjects whose names match pattern, or
// of every subject when pattern is empty. Subjects are single threaded, so
// the daemon runs the collection on the goroutine that owns them.
type Collector func(ctx context.Context, pattern string) (diag.Report, error)

// Handlers serves the admin endpoints.
type Handlers struct {
	collect Collector
}

// NewHandlers creates handlers backed by collect.
func NewHandlers(collect Collector) *Handlers {
	return &Handlers{collect: collect}
}

func (h *Handlers) report(w http.ResponseWriter, r *http.Request, pattern string) (diag.Report, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), collectTimeout)
	defer cancel()

	rep, err := h.collect(ctx, pattern)
	if errors.Is(err, registry.ErrInvalidPattern) {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return diag.Report{}, false
	}
	if err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("Failed to collect subject report")
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return diag.Report{}, false
	}
	return rep, true
}

// handleSubjects lists subjects, optionally filtered by ?match=glob
func (h *Handlers) handleSubjects(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.report(w, r, r.URL.Query().Get("match"))
	if !ok {
		return
	}
	writeJSONResponse(w, rep)
}

// handleSubject returns one subject by name
func (h *Handlers) handleSubject(w http.ResponseWriter, r *http.Request, name string) {
	rep, ok := h.report(w, r, "")
	if !ok {
		return
	}
	sr, found := rep.Find(name)
	if !found {
		writeErrorResponse(w, http.StatusNotFound, "subject '"+name+"' not found")
		return
	}
	writeJSONResponse(w, sr)
}

// handleDump renders every subject as text
func (h *Handlers) handleDump(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.report(w, r, "")
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(diag.Format(rep)))
}

// handleSnapshot returns the msgpack encoded report
func (h *Handlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.report(w, r, r.URL.Query().Get("match"))
	if !ok {
		return
	}
	data, err := diag.Encode(rep)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.Write(data)
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
