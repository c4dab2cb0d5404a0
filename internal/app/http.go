package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/replay"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/telemetry"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
)

type HTTPHandlerConfig struct {
	World    *World
	Settings config.Settings
	// Connect upgrades replication clients.
	Connect http.Handler
	// Store may be nil, in which case the recordings routes answer 503.
	Store   *replay.Store
	Metrics *telemetry.Counters
	Router  *logging.Router
	Logger  telemetry.Logger
}

func NewHTTPHandler(cfg HTTPHandlerConfig) http.Handler {
	h := &handlers{cfg: cfg}
	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/diagnostics", h.diagnostics).Methods(http.MethodGet)
	if cfg.Connect != nil {
		r.Handle("/connect", cfg.Connect)
	}
	r.HandleFunc("/recordings", h.listRecordings).Methods(http.MethodGet)
	r.HandleFunc("/recordings/{id}", h.downloadRecording).Methods(http.MethodGet)
	r.HandleFunc("/recordings/{id}", h.deleteRecording).Methods(http.MethodDelete)
	return r
}

type handlers struct {
	cfg HTTPHandlerConfig
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (h *handlers) diagnostics(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Status     string            `json:"status"`
		ServerTime int64             `json:"serverTime"`
		TickRate   int               `json:"tickRate"`
		PacketRate int               `json:"packetRate"`
		Stream     any               `json:"stream"`
		Recording  RecordingStatus   `json:"recording"`
		Telemetry  map[string]uint64 `json:"telemetry"`
		Logging    any               `json:"logging,omitempty"`
	}{
		Status:     "ok",
		ServerTime: time.Now().UnixMilli(),
		TickRate:   h.cfg.Settings.TickRate,
		PacketRate: h.cfg.Settings.PacketRate,
		Stream:     h.cfg.World.Diagnostics(),
		Recording:  h.cfg.World.Recording(),
	}
	if h.cfg.Metrics != nil {
		payload.Telemetry = h.cfg.Metrics.Snapshot()
	}
	if h.cfg.Router != nil {
		payload.Logging = h.cfg.Router.Stats()
	}
	h.writeJSON(w, payload)
}

func (h *handlers) listRecordings(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Store == nil {
		httpError(w, "recordings disabled", http.StatusServiceUnavailable)
		return
	}
	list, err := h.cfg.Store.List(r.Context())
	if err != nil {
		h.logf("list recordings: %v", err)
		httpError(w, "failed to list recordings", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []replay.Recording{}
	}
	h.writeJSON(w, list)
}

func (h *handlers) downloadRecording(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Store == nil {
		httpError(w, "recordings disabled", http.StatusServiceUnavailable)
		return
	}
	data, err := h.cfg.Store.Load(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, replay.ErrNotFound) {
		httpError(w, "recording not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logf("load recording: %v", err)
		httpError(w, "failed to load recording", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (h *handlers) deleteRecording(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Store == nil {
		httpError(w, "recordings disabled", http.StatusServiceUnavailable)
		return
	}
	err := h.cfg.Store.Delete(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, replay.ErrNotFound) {
		httpError(w, "recording not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logf("delete recording: %v", err)
		httpError(w, "failed to delete recording", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) writeJSON(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *handlers) logf(format string, args ...any) {
	if h.cfg.Logger != nil {
		h.cfg.Logger.Printf(format, args...)
	}
}

func httpError(w http.ResponseWriter, msg string, code int) {
	http.Error(w, msg, code)
}
