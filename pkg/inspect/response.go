package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/rpc"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (h *handler) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.config.CallTimeout)
}

// writeResult maps a session error to an HTTP status.
func (h *handler) writeResult(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var conflict *room.StateConflictError
	var remote *rpc.RemoteError
	switch {
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, room.ErrPermission):
		writeError(w, http.StatusForbidden, err)
	case room.IsProtocolError(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, room.ErrSessionState):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err)
	case errors.As(err, &remote):
		writeError(w, http.StatusBadGateway, err)
	default:
		h.config.Logger.Error("inspect call failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}
