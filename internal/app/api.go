package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrWong99/voxcap/internal/cliplog"
	"github.com/MrWong99/voxcap/internal/observe"
)

// maxRecentLimit bounds GET /v1/clips?limit=n.
const maxRecentLimit = 500

// RegisterAPI adds the capture API routes to mux:
//
//	POST /v1/listen  run one capture request
//	GET  /v1/clips   list recent clip log entries (?limit=n)
func RegisterAPI(mux *http.ServeMux, l *Listener) {
	mux.HandleFunc("POST /v1/listen", listenHandler(l))
	mux.HandleFunc("GET /v1/clips", clipsHandler(l))
}

func listenHandler(l *Listener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := l.Listen(r.Context())
		switch {
		case errors.Is(err, ErrCaptureActive):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// The client is gone or gave up; the clip is logged either way.
			observe.Logger(r.Context()).Info("app: listen request cancelled", "error", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, res)
		}
	}
}

type clipsResponse struct {
	Clips []cliplog.Entry `json:"clips"`
}

func clipsHandler(l *Listener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := cliplog.DefaultRecentLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > maxRecentLimit {
				writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and "+strconv.Itoa(maxRecentLimit))
				return
			}
			limit = n
		}
		entries, err := l.Recent(r.Context(), limit)
		if err != nil {
			observe.Logger(r.Context()).Error("app: list clips", "error", err)
			writeError(w, http.StatusInternalServerError, "clip log unavailable")
			return
		}
		if entries == nil {
			entries = []cliplog.Entry{}
		}
		writeJSON(w, http.StatusOK, clipsResponse{Clips: entries})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
