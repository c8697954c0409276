package room

import "go.uber.org/zap"

// Broadcast sends event to every connected participant.
func (r *Room) Broadcast(event string, payload any) {
	r.BroadcastExcept(event, payload, "")
}

// BroadcastExcept sends event to every connected participant except the one
// holding exceptSessionID. An empty exceptSessionID excludes nobody.
func (r *Room) BroadcastExcept(event string, payload any, exceptSessionID string) {
	for sid, c := range r.clients {
		if exceptSessionID != "" && sid == exceptSessionID {
			continue
		}
		r.send(c, event, payload)
	}
}

// Send delivers event to one connected session.
func (r *Room) Send(sessionID, event string, payload any) bool {
	c, ok := r.clients[sessionID]
	if !ok {
		return false
	}
	r.send(c, event, payload)
	return true
}

func (r *Room) send(c Client, event string, payload any) {
	if err := c.Send(event, payload); err != nil {
		r.logger.Debug("dropping outbound event",
			zap.String("session_id", c.SessionID()),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
