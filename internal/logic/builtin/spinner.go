// Package builtin holds behavior modules compiled into the server.
package builtin

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/logic"
	"github.com/cory-johannsen/roomserver/internal/room/attr"
)

// SpinnerName is the registry name of the spinner module.
const SpinnerName = "spinner"

// SpinAttribute holds an entity's angular speed in degrees per second.
// Entities without it, or with a zero or unparsable value, do not turn.
const SpinAttribute = "spin"

// DefaultSpinSpeed is used by the "spin" custom method when no speed is given.
const DefaultSpinSpeed = 90.0

// Spinner turns entities about the vertical axis every tick. Clients start
// and stop it with customMethod {"method":"spin"|"stop","entityId":...}.
type Spinner struct {
	defaultSpeed float64
	angles       map[string]float64
	logger       *zap.Logger
}

// NewSpinner is a logic.Factory for Spinner.
func NewSpinner(logger *zap.Logger) (logic.Module, error) {
	return &Spinner{
		defaultSpeed: DefaultSpinSpeed,
		angles:       make(map[string]float64),
		logger:       logger,
	}, nil
}

// Register adds every built-in module to reg.
func Register(reg *logic.Registry) error {
	if err := reg.Register(SpinnerName, NewSpinner); err != nil {
		return fmt.Errorf("builtin: %w", err)
	}
	return nil
}

// Initialize reads the optional "spinSpeed" room option.
func (s *Spinner) Initialize(_ logic.Room, opts logic.Options) error {
	v, ok := opts["spinSpeed"]
	if !ok {
		return nil
	}
	speed := attr.ToNumber(v)
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("spinner: invalid spinSpeed %v", v)
	}
	s.defaultSpeed = speed
	return nil
}

// ProcessTick advances every spinning entity by speed * elapsed.
func (s *Spinner) ProcessTick(r logic.Room, elapsed time.Duration) error {
	if elapsed <= 0 {
		return nil
	}
	seconds := elapsed.Seconds()
	for _, id := range r.State().Entities.Keys() {
		e, ok := r.State().Entities.Get(id)
		if !ok {
			continue
		}
		raw, ok := e.Attribute(SpinAttribute)
		if !ok {
			continue
		}
		speed := attr.ParseNumber(raw)
		if speed == 0 || math.IsNaN(speed) {
			continue
		}
		angle := math.Mod(s.angles[id]+speed*seconds, 360)
		s.angles[id] = angle
		half := angle * math.Pi / 360
		r.UpdateEntity([]string{
			id,
			"xRot", "0",
			"yRot", attr.FormatNumber(math.Sin(half)),
			"zRot", "0",
			"wRot", attr.FormatNumber(math.Cos(half)),
		})
	}
	return nil
}

// ProcessCustomMethod handles "spin" and "stop"; other methods are ignored.
func (s *Spinner) ProcessCustomMethod(r logic.Room, c logic.Client, req map[string]any) error {
	method, _ := req["method"].(string)
	id, _ := req["entityId"].(string)
	switch method {
	case "spin":
		speed := s.defaultSpeed
		if v, ok := req["speed"]; ok {
			speed = attr.ToNumber(v)
		}
		if !r.SetEntityAttributes(id, map[string]string{SpinAttribute: attr.FormatNumber(speed)}) {
			return fmt.Errorf("spinner: no entity %q", id)
		}
	case "stop":
		if !r.SetEntityAttributes(id, map[string]string{SpinAttribute: "0"}) {
			return fmt.Errorf("spinner: no entity %q", id)
		}
	default:
		s.logger.Debug("spinner ignoring custom method",
			zap.String("method", method),
			zap.String("session_id", c.SessionID()),
		)
	}
	return nil
}

// ProcessDeparture forgets angles of entities removed by the purge.
func (s *Spinner) ProcessDeparture(r logic.Room) error {
	for id := range s.angles {
		if !r.State().Entities.Has(id) {
			delete(s.angles, id)
		}
	}
	return nil
}
