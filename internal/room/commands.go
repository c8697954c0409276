package room

// Inbound command names.
const (
	CmdPing               = "ping"
	CmdCustomMethod       = "customMethod"
	CmdEntityUpdate       = "entityUpdate"
	CmdRemoteFunctionCall = "remoteFunctionCall"
	CmdSetAttribute       = "setAttribute"
	CmdRemoveEntity       = "removeEntity"
	CmdCreateEntity       = "createEntity"
)

// Social passthrough commands, relayed verbatim to everyone but the sender.
const (
	CmdChatMsg   = "onChatMsg"
	CmdFurniture = "onFurniture"
	CmdDance     = "onDance"
	CmdGesture   = "onGesture"
)

// SocialCommands lists the passthroughs installed on first join.
var SocialCommands = []string{CmdChatMsg, CmdFurniture, CmdDance, CmdGesture}

// Outbound event names.
const (
	EventJoin            = "onJoin"
	EventRFC             = "onRFC"
	EventWalletNotPassed = "walletNotPassed"
	EventState           = "state"
	EventPing            = "ping"
)

// CreateEntityRequest is the createEntity payload.
type CreateEntityRequest struct {
	CreationID string         `json:"creationId"`
	Attributes map[string]any `json:"attributes"`
}

// SetAttributeRequest is the setAttribute payload. Exactly one of EntityID
// and UserID must be set.
type SetAttributeRequest struct {
	EntityID        *string        `json:"entityId"`
	UserID          *string        `json:"userId"`
	AttributesToSet map[string]any `json:"attributesToSet"`
}

// rfcEntityKey, rfcTargetKey and rfcConnectionKey are the remoteFunctionCall
// fields the router reads or stamps; all other fields relay untouched.
const (
	rfcEntityKey     = "entityId"
	rfcTargetKey     = "target"
	rfcConnectionKey = "connectionId"
)
