package room

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/room/schema"
)

// Handler processes one inbound command from c.
type Handler func(c Client, data json.RawMessage)

// Router maps inbound command names to handlers and validates payloads
// before dispatch. Owned by the room goroutine.
type Router struct {
	handlers  map[string]Handler
	validator *schema.Validator
	logger    *zap.Logger
}

// NewRouter creates an empty Router. validator may be nil to skip schema checks.
func NewRouter(validator *schema.Validator, logger *zap.Logger) *Router {
	return &Router{
		handlers:  make(map[string]Handler),
		validator: validator,
		logger:    logger,
	}
}

// Handle installs h for name, replacing any existing handler.
func (r *Router) Handle(name string, h Handler) {
	r.handlers[name] = h
}

// Installed reports whether name has a handler.
func (r *Router) Installed(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Dispatch validates data and runs the handler for name.
//
// Postcondition: Returns false without side effects for unknown commands and
// payloads that fail validation.
func (r *Router) Dispatch(c Client, name string, data json.RawMessage) bool {
	h, ok := r.handlers[name]
	if !ok {
		r.logger.Debug("no handler for command",
			zap.String("command", name),
			zap.String("session_id", c.SessionID()),
		)
		return false
	}
	if r.validator != nil {
		if err := r.validator.Validate(name, data); err != nil {
			r.logger.Debug("dropping invalid command",
				zap.String("command", name),
				zap.String("session_id", c.SessionID()),
				zap.Error(err),
			)
			return false
		}
	}
	h(c, data)
	return true
}
