package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cory-johannsen/roomserver/internal/logic"
	"github.com/cory-johannsen/roomserver/internal/matchmaker"
	"github.com/cory-johannsen/roomserver/internal/storage"
)

// Error codes carried in error bodies.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnknownLogic   = "UNKNOWN_LOGIC"
	CodeRoomExists     = "ROOM_EXISTS"
	CodeRoomNotFound   = "ROOM_NOT_FOUND"
	CodeUnavailable    = "UNAVAILABLE"
	CodeInternalError  = "INTERNAL_ERROR"
)

var errInternal = errors.New("gateway: internal error")

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

type httpError struct {
	status int
	body   APIError
}

func (e *httpError) Error() string { return e.body.Message }

func badRequest(msg string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, msg}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	writeJSON(w, he.status, ErrorResponse{Error: he.body})
}

func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, logic.ErrUnknownLogic):
		return &httpError{http.StatusBadRequest, APIError{CodeUnknownLogic, err.Error()}}
	case errors.Is(err, matchmaker.ErrRoomExists):
		return &httpError{http.StatusConflict, APIError{CodeRoomExists, err.Error()}}
	case errors.Is(err, matchmaker.ErrRoomNotFound), errors.Is(err, storage.ErrRoomNotListed):
		return &httpError{http.StatusNotFound, APIError{CodeRoomNotFound, "room not found"}}
	case errors.Is(err, matchmaker.ErrShutdown):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeUnavailable, "server is shutting down"}}
	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "internal error"}}
	}
}
