package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/digestscope/pkg/repository"
)

// statusHandler returns server status and store counters
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountItems(r.Context())
	if err != nil {
		lgr.Printf("[ERROR] failed to count items: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"items":   count,
		"time":    time.Now().UTC(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// runsHandler returns recent runs, newest first
func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > 100 {
			renderError(w, r, fmt.Errorf("invalid limit"), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	runs, err := s.store.GetRecentRuns(r.Context(), limit)
	if err != nil {
		lgr.Printf("[ERROR] failed to get runs: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]interface{}{"runs": runs})
}

// runItemsHandler returns the ranked items of one run
func (s *Server) runItemsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		renderError(w, r, fmt.Errorf("invalid run ID"), http.StatusBadRequest)
		return
	}

	items, err := s.store.GetRunItems(r.Context(), id)
	if err != nil {
		lgr.Printf("[ERROR] failed to get run items: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]interface{}{"run_id": id, "items": items})
}

// searchHandler runs a full-text search over stored items
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		renderError(w, r, fmt.Errorf("query parameter q is required"), http.StatusBadRequest)
		return
	}

	items, err := s.store.SearchHistory(r.Context(), query, 50)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidQuery) {
			renderError(w, r, err, http.StatusBadRequest)
			return
		}
		lgr.Printf("[ERROR] search failed: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]interface{}{"query": query, "items": items})
}

// runNowHandler triggers a digest cycle and returns its summary. The cycle
// itself runs under the scheduler's context, a dropped client only stops
// the wait for the result.
func (s *Server) runNowHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.trigger.RunNow(r.Context())
	if err != nil {
		lgr.Printf("[ERROR] manual run failed: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, run)
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			lgr.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
