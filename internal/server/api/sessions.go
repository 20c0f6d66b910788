// Package api provides the journal HTTP handlers of the touch table.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ayusman/touchtable/internal/geometry"
	"github.com/ayusman/touchtable/internal/store"
)

// defaultTouchLimit caps the touches returned for one session unless the
// request asks for more.
const defaultTouchLimit = 1000

// SessionHandler serves the session journal.
type SessionHandler struct {
	store *store.Store
	// active returns the ID of the session being recorded, which must not
	// be deleted. It may be nil.
	active func() string
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store, active func() string) *SessionHandler {
	return &SessionHandler{store: s, active: active}
}

// ServeHTTP routes /api/sessions and /api/sessions/{id}.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	id := strings.TrimPrefix(path, "/")

	if id == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Response types

type sessionResponse struct {
	ID            string `json:"id"`
	CameraWidth   int    `json:"camera_width"`
	CameraHeight  int    `json:"camera_height"`
	DisplayWidth  int    `json:"display_width"`
	DisplayHeight int    `json:"display_height"`
	StartedAt     string `json:"started_at"`
	EndedAt       string `json:"ended_at,omitempty"`
}

type calibrationResponse struct {
	Targets    []geometry.Point `json:"targets"`
	Observed   []geometry.Point `json:"observed"`
	Homography []float64        `json:"homography"`
	Residual   float64          `json:"residual"`
	Condition  float64          `json:"condition"`
	CreatedAt  string           `json:"created_at"`
}

type sessionDetailResponse struct {
	sessionResponse
	Calibration *calibrationResponse `json:"calibration,omitempty"`
	TouchCount  int                  `json:"touch_count"`
	Touches     []geometry.Point     `json:"touches"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:            s.ID,
		CameraWidth:   s.CameraWidth,
		CameraHeight:  s.CameraHeight,
		DisplayWidth:  s.DisplayWidth,
		DisplayHeight: s.DisplayHeight,
		StartedAt:     s.StartedAt.Format(time.RFC3339),
	}
	if !s.EndedAt.IsZero() {
		resp.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, listSessionsResponse{
		Sessions: lo.Map(sessions, func(s *store.Session, _ int) sessionResponse {
			return toResponse(s)
		}),
	})
}

// get handles GET /api/sessions/{id}. The optional limit query parameter, a
// positive integer, caps the number of touches returned.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	limit := defaultTouchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	resp := sessionDetailResponse{sessionResponse: toResponse(sess)}

	cal, err := h.store.Calibrations().GetBySession(id)
	switch {
	case err == nil:
		resp.Calibration = &calibrationResponse{
			Targets:    cal.Targets,
			Observed:   cal.Observed,
			Homography: cal.Homography,
			Residual:   cal.Residual,
			Condition:  cal.Condition,
			CreatedAt:  cal.CreatedAt.Format(time.RFC3339),
		}
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusInternalServerError, "Failed to get calibration")
		return
	}

	resp.TouchCount, err = h.store.Touches().CountBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count touches")
		return
	}
	touches, err := h.store.Touches().ListBySession(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list touches")
		return
	}
	resp.Touches = store.Points(touches)

	writeJSON(w, http.StatusOK, resp)
}

// delete handles DELETE /api/sessions/{id}. The running session is refused
// with 409.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if h.active != nil && h.active() == id {
		writeError(w, http.StatusConflict, "Session is still recording")
		return
	}
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
