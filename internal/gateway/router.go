// Package gateway exposes the HTTP surface: health, the room directory,
// room creation and the websocket entry point.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/matchmaker"
	"github.com/cory-johannsen/roomserver/internal/storage"
)

// maxCreateBody bounds a POST /rooms body.
const maxCreateBody = 64 * 1024

// Rooms is the matchmaker surface the gateway needs.
type Rooms interface {
	Create(ctx context.Context, opts matchmaker.CreateOptions) (string, error)
	Dispose(roomID string) error
	Exists(roomID string) bool
}

// Sockets serves a websocket connection for a room.
type Sockets interface {
	ServeRoom(w http.ResponseWriter, r *http.Request, roomID string)
}

// Config wires the router's collaborators.
type Config struct {
	Rooms     Rooms
	Directory storage.Directory
	Sockets   Sockets
	Logger    *zap.Logger
}

// Created is the body of a successful POST /rooms.
type Created struct {
	RoomID string `json:"roomId"`
}

type handler struct {
	rooms     Rooms
	directory storage.Directory
	sockets   Sockets
	logger    *zap.Logger
}

// NewRouter builds the HTTP handler.
//
// Precondition: every Config field must be non-nil.
func NewRouter(cfg Config) http.Handler {
	h := &handler{
		rooms:     cfg.Rooms,
		directory: cfg.Directory,
		sockets:   cfg.Sockets,
		logger:    cfg.Logger,
	}

	r := mux.NewRouter()
	r.Use(recovery(cfg.Logger))
	r.Use(logging(cfg.Logger))

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/rooms", h.listRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms", h.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomId}", h.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomId}", h.disposeRoom).Methods(http.MethodDelete)
	r.HandleFunc("/rooms/{roomId}/ws", h.connect).Methods(http.MethodGet)
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listRooms(w http.ResponseWriter, r *http.Request) {
	listings, err := h.directory.List(r.Context())
	if err != nil {
		h.logger.Error("listing rooms", zap.Error(err))
		writeError(w, err)
		return
	}
	if listings == nil {
		listings = []storage.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *handler) getRoom(w http.ResponseWriter, r *http.Request) {
	l, err := h.directory.Get(r.Context(), mux.Vars(r)["roomId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var opts matchmaker.CreateOptions
	dec := json.NewDecoder(io.LimitReader(r.Body, maxCreateBody))
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, badRequest("invalid room options: "+err.Error()))
		return
	}

	id, err := h.rooms.Create(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Created{RoomID: id})
}

func (h *handler) disposeRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.rooms.Dispose(mux.Vars(r)["roomId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) connect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["roomId"]
	if !h.rooms.Exists(id) {
		writeError(w, matchmaker.ErrRoomNotFound)
		return
	}
	h.sockets.ServeRoom(w, r, id)
}
