package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"

	"callsign/internal/logging"
)

// routes builds the HTTP surface: a read-only status API plus the
// WebSocket endpoint clients connect to.
func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", d.handleStatus)
	mux.HandleFunc("/api/mission", d.handleMission)
	mux.HandleFunc("/api/journal", d.handleJournal)
	mux.HandleFunc("/ws", d.hub.ServeWS)
	return mux
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		d.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d.writeJSON(w, http.StatusOK, d.Status())
}

func (d *Daemon) handleMission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		d.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d.writeJSON(w, http.StatusOK, d.engine.Snapshot())
}

func (d *Daemon) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		d.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			d.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := d.JournalEntries(r.Context(), r.URL.Query().Get("run_id"), limit)
	if err != nil {
		d.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (d *Daemon) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		d.logger.Warn("write response", logging.Error(err))
	}
}

func (d *Daemon) writeError(w http.ResponseWriter, status int, message string) {
	d.writeJSON(w, status, map[string]string{"error": message})
}
