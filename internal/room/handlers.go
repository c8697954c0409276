package room

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/room/attr"
	"github.com/cory-johannsen/roomserver/internal/room/state"
)

func (r *Room) installHandlers() {
	r.router.Handle(CmdPing, r.handlePing)
	r.router.Handle(CmdCustomMethod, r.handleCustomMethod)
	r.router.Handle(CmdEntityUpdate, r.handleEntityUpdate)
	r.router.Handle(CmdRemoteFunctionCall, r.handleRemoteFunctionCall)
	r.router.Handle(CmdSetAttribute, r.handleSetAttribute)
	r.router.Handle(CmdRemoveEntity, r.handleRemoveEntity)
	r.router.Handle(CmdCreateEntity, r.handleCreateEntity)
}

// installSocialHandlers adds the chat/social relays. Idempotent.
func (r *Room) installSocialHandlers() {
	if r.socialOn {
		return
	}
	for _, name := range SocialCommands {
		event := name
		r.router.Handle(event, func(c Client, data json.RawMessage) {
			r.BroadcastExcept(event, data, c.SessionID())
		})
	}
	r.socialOn = true
}

func (r *Room) handlePing(c Client, _ json.RawMessage) {
	r.send(c, EventPing, r.clock.Now())
}

func (r *Room) handleCustomMethod(c Client, data json.RawMessage) {
	var req map[string]any
	if !r.decode(c, CmdCustomMethod, data, &req) {
		return
	}
	r.host.ProcessCustomMethod(r, c, req)
}

func (r *Room) handleEntityUpdate(c Client, data json.RawMessage) {
	var raw []any
	if !r.decode(c, CmdEntityUpdate, data, &raw) {
		return
	}
	tokens := make([]string, len(raw))
	for i, v := range raw {
		tokens[i] = attr.Stringify(v)
	}
	r.UpdateEntity(tokens)
}

// handleRemoteFunctionCall relays an invocation to other participants.
// Only the entity's existence is checked; any connection may invoke on any
// entity.
func (r *Room) handleRemoteFunctionCall(c Client, data json.RawMessage) {
	var msg map[string]any
	if !r.decode(c, CmdRemoteFunctionCall, data, &msg) {
		return
	}
	entityID, _ := msg[rfcEntityKey].(string)
	if !r.store.Entities.Has(entityID) {
		r.logger.Debug("remote function call on unknown entity", zap.String("entity_id", entityID))
		return
	}
	msg[rfcConnectionKey] = r.connectionID(c)

	if target, ok := msg[rfcTargetKey].(float64); ok && target == 0 {
		r.Broadcast(EventRFC, msg)
		return
	}
	r.BroadcastExcept(EventRFC, msg, c.SessionID())
}

func (r *Room) handleSetAttribute(c Client, data json.RawMessage) {
	var req SetAttributeRequest
	if !r.decode(c, CmdSetAttribute, data, &req) {
		return
	}
	if (req.EntityID == nil) == (req.UserID == nil) {
		r.logger.Debug("setAttribute needs exactly one of entityId or userId",
			zap.String("session_id", c.SessionID()),
		)
		return
	}
	values := make(map[string]string, len(req.AttributesToSet))
	for k, v := range req.AttributesToSet {
		values[k] = attr.Stringify(v)
	}

	now := r.clock.Now()
	if req.EntityID != nil {
		if !r.entities.SetAttributes(*req.EntityID, values, now) {
			r.logger.Debug("setAttribute on unknown entity", zap.String("entity_id", *req.EntityID))
		}
		return
	}
	if !r.users.SetAttributes(*req.UserID, values, now) {
		r.logger.Debug("setAttribute on unknown user", zap.String("user_id", *req.UserID))
	}
}

func (r *Room) handleRemoveEntity(c Client, data json.RawMessage) {
	var id string
	if !r.decode(c, CmdRemoveEntity, data, &id) {
		return
	}
	r.RemoveEntity(id)
}

func (r *Room) handleCreateEntity(c Client, data json.RawMessage) {
	var req CreateEntityRequest
	if !r.decode(c, CmdCreateEntity, data, &req) {
		return
	}
	if _, err := r.CreateEntity(r.connectionID(c), req.CreationID, req.Attributes); err != nil {
		r.logger.Warn("entity creation failed", zap.Error(err))
	}
}

func (r *Room) decode(c Client, command string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		r.logger.Debug("dropping undecodable command",
			zap.String("command", command),
			zap.String("session_id", c.SessionID()),
			zap.Error(err),
		)
		return false
	}
	return true
}

// CreateEntity creates an entity owned by ownerID at the current server time.
func (r *Room) CreateEntity(ownerID, creationID string, attributes map[string]any) (*state.Entity, error) {
	e, err := r.entities.Create(ownerID, creationID, attributes, r.clock.Now())
	if err != nil {
		return nil, err
	}
	r.logger.Debug("entity created",
		zap.String("entity_id", e.ID),
		zap.String("owner_id", ownerID),
	)
	return e, nil
}

// RemoveEntity deletes an entity if it exists.
func (r *Room) RemoveEntity(id string) {
	if !r.entities.Remove(id) {
		r.logger.Debug("remove of unknown entity", zap.String("entity_id", id))
	}
}

// UpdateEntity applies a flat update token stream at the current server time.
func (r *Room) UpdateEntity(tokens []string) bool {
	return r.entities.ApplyFlatUpdate(tokens, r.clock.Now())
}

// SetEntityAttributes merges values into an entity's attributes.
func (r *Room) SetEntityAttributes(id string, values map[string]string) bool {
	return r.entities.SetAttributes(id, values, r.clock.Now())
}
