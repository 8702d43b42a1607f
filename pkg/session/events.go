package session

// EventKind names an externally observable state change.
type EventKind string

const (
	EventUserConnected    EventKind = "user_connected"
	EventUserDisconnected EventKind = "user_disconnected"
	EventUserMoved        EventKind = "user_moved"
	EventUserRenamed      EventKind = "user_renamed"
	EventUserMuteChanged  EventKind = "user_mute_changed"
	EventChannelAdded     EventKind = "channel_added"
	EventChannelRemoved   EventKind = "channel_removed"
	EventChannelRenamed   EventKind = "channel_renamed"
	EventTextMessage      EventKind = "text_message"
	EventConnected        EventKind = "connected"
	EventDisconnected     EventKind = "disconnected"
	EventKeepaliveTimeout EventKind = "keepalive_timeout"
)

// Event is one entry on the IPC event stream, in the order applied.
type Event struct {
	Kind     EventKind `json:"kind"`
	Session  uint32    `json:"session,omitempty"`
	User     string    `json:"user,omitempty"`
	Channel  string    `json:"channel,omitempty"`
	Message  string    `json:"message,omitempty"`
	Muted    bool      `json:"muted,omitempty"`
	Deafened bool      `json:"deafened,omitempty"`
}
