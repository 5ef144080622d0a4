// Package inspect serves a room session over HTTP for debugging and
// operations: the state tree, roster, door, clock estimate and
// Prometheus metrics, plus a few write endpoints.
//
//	r := chi.NewRouter()
//	r.Mount("/room", inspect.Handler(session, nil))
//
// Routes:
//
//	GET    /healthz
//	GET    /room                       room info and session status
//	GET    /state?path=a&path=0        value, presence and hash at path
//	PUT    /state?path=…[&force=1]     ChangeState with the JSON body
//	DELETE /state?path=…[&force=1]     DeleteState
//	GET    /connections                roster sorted by id
//	GET    /door                       door snapshot
//	POST   /door/{account}/{access}    access is "allow" or "block"
//	GET    /clock                      latest offset estimate
//	POST   /clock/sync                 SyncTime
//	POST   /broadcast[?service=1]      body sent as a string message, or
//	                                   binary for application/octet-stream
//	GET    /metrics                    Prometheus exposition
//
// A path argument made only of digits is an array index; prefix it with a
// backslash to use it as a key.
package inspect

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/state"
)

// Config configures the inspection handler.
type Config struct {
	// Logger receives one Debug line per request.
	// Default: slog.Default().
	Logger *slog.Logger

	// Metrics serves /metrics.
	// Default: promhttp.Handler().
	Metrics http.Handler

	// ReadOnly disables every endpoint that writes to the room.
	ReadOnly bool

	// MaxBodySize limits request bodies.
	// Default: 1MB.
	MaxBodySize int64

	// CallTimeout bounds calls made on behalf of a request.
	// Default: 10s.
	CallTimeout time.Duration
}

func (c *Config) withDefaults() *Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Metrics == nil {
		out.Metrics = promhttp.Handler()
	}
	if out.MaxBodySize <= 0 {
		out.MaxBodySize = 1 << 20
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = 10 * time.Second
	}
	return &out
}

type handler struct {
	s      *room.Session
	config *Config
}

// Handler returns the inspection routes for s.
func Handler(s *room.Session, config *Config) http.Handler {
	h := &handler{s: s, config: config.withDefaults()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/room", h.getRoom)
	r.Get("/state", h.getState)
	r.Get("/connections", h.getConnections)
	r.Get("/door", h.getDoor)
	r.Get("/clock", h.getClock)
	r.Handle("/metrics", h.config.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(h.writable)
		r.Put("/state", h.putState)
		r.Delete("/state", h.deleteState)
		r.Post("/door/{account}/{access}", h.postAccess)
		r.Post("/clock/sync", h.postSync)
		r.Post("/broadcast", h.postBroadcast)
	})
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.config.Logger.Debug("inspect request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *handler) writable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.ReadOnly {
			writeError(w, http.StatusForbidden, errors.New("inspect: read-only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type roomView struct {
	protocol.RoomInfo
	Status       string `json:"status"`
	ConnectionID string `json:"connectionId,omitempty"`
	Name         string `json:"name,omitempty"`
	Resource     string `json:"resource,omitempty"`
	PendingCalls int    `json:"pendingCalls"`
}

func (h *handler) getRoom(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, roomView{
		RoomInfo:     h.s.Info(),
		Status:       h.s.Status().String(),
		ConnectionID: h.s.ConnectionID(),
		Name:         h.s.Name(),
		Resource:     h.s.Resource(),
		PendingCalls: h.s.PendingCalls(),
	})
}

type stateView struct {
	Path    state.Path `json:"path"`
	Present bool       `json:"present"`
	Value   any        `json:"value,omitempty"`
	Hash    int32      `json:"hash"`
}

func queryPath(r *http.Request) state.Path {
	return state.ParseArgs(r.URL.Query()["path"])
}

func (h *handler) getState(w http.ResponseWriter, r *http.Request) {
	p := queryPath(r)
	v, ok := h.s.SelectState(p)
	hash, err := state.Hash(v, ok)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stateView{Path: p, Present: ok, Value: v, Hash: hash})
}

func (h *handler) putState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := h.callContext(r)
	defer cancel()
	err = h.s.ChangeState(ctx, data, queryPath(r), r.URL.Query().Get("force") == "1")
	h.writeResult(w, err)
}

func (h *handler) deleteState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.callContext(r)
	defer cancel()
	err := h.s.DeleteState(ctx, queryPath(r), r.URL.Query().Get("force") == "1")
	h.writeResult(w, err)
}

type connectionView struct {
	protocol.ConnectionInfo
	Current bool `json:"current"`
}

func (h *handler) getConnections(w http.ResponseWriter, r *http.Request) {
	conns := h.s.Connections()
	out := make([]connectionView, 0, len(conns))
	for _, c := range conns {
		out = append(out, connectionView{ConnectionInfo: c.Info(), Current: c.Current()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getDoor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.s.Door().Snapshot())
}

func (h *handler) postAccess(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	ctx, cancel := h.callContext(r)
	defer cancel()

	var err error
	switch chi.URLParam(r, "access") {
	case protocol.AccessAllow:
		err = h.s.Allow(ctx, account)
	case protocol.AccessBlock:
		err = h.s.Block(ctx, account)
	default:
		writeError(w, http.StatusNotFound, errors.New("inspect: unknown access"))
		return
	}
	h.writeResult(w, err)
}

type clockView struct {
	Synced     bool      `json:"synced"`
	OffsetMS   int64     `json:"offsetMs"`
	AccuracyMS int64     `json:"accuracyMs"`
	SyncedAt   time.Time `json:"syncedAt"`
	RemoteNow  time.Time `json:"remoteNow"`
}

func (h *handler) clockView() clockView {
	est, ok := h.s.Clock()
	v := clockView{Synced: ok, RemoteNow: h.s.RemoteNow()}
	if ok {
		v.OffsetMS = est.Offset.Milliseconds()
		v.AccuracyMS = est.Accuracy.Milliseconds()
		v.SyncedAt = est.SyncedAt
	}
	return v
}

func (h *handler) getClock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.clockView())
}

func (h *handler) postSync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.callContext(r)
	defer cancel()
	if _, err := h.s.SyncTime(ctx); err != nil {
		h.writeResult(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.clockView())
}

func (h *handler) postBroadcast(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	var message any = string(body)
	if r.Header.Get("Content-Type") == "application/octet-stream" {
		message = body
	}
	ctx, cancel := h.callContext(r)
	defer cancel()
	h.writeResult(w, h.s.Broadcast(ctx, message, r.URL.Query().Get("service") == "1"))
}
