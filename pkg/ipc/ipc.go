// Package ipc defines the request/response schema spoken between the mum
// controller and the mumd daemon, and the Unix socket plumbing for both
// sides. Frames are length-prefixed JSON: [4-byte big-endian length][payload].
package ipc

import (
	"github.com/sornas/mum/pkg/session"
)

// MaxFrame caps an IPC frame (1MB covers any event batch).
const MaxFrame = 1 << 20

// DefaultSocketPath is where the daemon listens unless configured otherwise.
const DefaultSocketPath = "/tmp/mumd.sock"

// Request wraps all controller commands. Exactly one field is set.
type Request struct {
	Connect      *ConnectRequest      `json:"connect,omitempty"`
	Disconnect   *DisconnectRequest   `json:"disconnect,omitempty"`
	Status       *StatusRequest       `json:"status,omitempty"`
	ChannelList  *ChannelListRequest  `json:"channel_list,omitempty"`
	ChannelJoin  *ChannelJoinRequest  `json:"channel_join,omitempty"`
	MuteSelf     *MuteSelfRequest     `json:"mute_self,omitempty"`
	DeafenSelf   *DeafenSelfRequest   `json:"deafen_self,omitempty"`
	MuteUser     *MuteUserRequest     `json:"mute_user,omitempty"`
	SetVolume    *SetVolumeRequest    `json:"set_volume,omitempty"`
	SendMessage  *SendMessageRequest  `json:"send_message,omitempty"`
	Events       *EventsRequest       `json:"events,omitempty"`
	ConfigReload *ConfigReloadRequest `json:"config_reload,omitempty"`
	Ping         *PingRequest         `json:"ping,omitempty"`
}

type ConnectRequest struct {
	Host              string `json:"host"`
	Port              uint16 `json:"port"`
	Username          string `json:"username"`
	Password          string `json:"password,omitempty"`
	AcceptInvalidCert bool   `json:"accept_invalid_cert,omitempty"`
}

type DisconnectRequest struct{}

type StatusRequest struct{}

type ChannelListRequest struct{}

type ChannelJoinRequest struct {
	// Identifier is a channel path suffix, e.g. "Gaming" or "Root/Gaming".
	Identifier string `json:"identifier"`
}

type MuteSelfRequest struct {
	Mute bool `json:"mute"`
}

type DeafenSelfRequest struct {
	Deafen bool `json:"deafen"`
}

// MuteUserRequest applies a local, never-transmitted mute of another user.
type MuteUserRequest struct {
	Username string `json:"username"`
	Mute     bool   `json:"mute"`
}

// VolumeScope selects what a SetVolumeRequest adjusts.
type VolumeScope string

const (
	VolumeInput  VolumeScope = "input"  // own capture gain
	VolumeOutput VolumeScope = "output" // master playback gain
	VolumeUser   VolumeScope = "user"   // one remote user's incoming gain
)

type SetVolumeRequest struct {
	Scope    VolumeScope `json:"scope"`
	Username string      `json:"username,omitempty"` // required for scope "user"
	Volume   float32     `json:"volume"`
}

type SendMessageRequest struct {
	Message   string   `json:"message"`
	Users     []string `json:"users,omitempty"`
	Channels  []string `json:"channels,omitempty"`
	Recursive bool     `json:"recursive,omitempty"` // expand channels to all descendants
}

type EventsRequest struct {
	// Since replays events with cursor > Since. Zero drains everything kept.
	Since uint64 `json:"since,omitempty"`
	// Follow keeps the connection open and streams events as they happen.
	Follow bool `json:"follow,omitempty"`
}

type ConfigReloadRequest struct{}

type PingRequest struct{}

// Response wraps all daemon replies. Exactly one field is set.
type Response struct {
	Error       *Error           `json:"error,omitempty"`
	Ok          *OkResponse      `json:"ok,omitempty"`
	Status      *StatusResponse  `json:"status,omitempty"`
	ChannelList *ChannelListInfo `json:"channel_list,omitempty"`
	SendReport  *SendReport      `json:"send_report,omitempty"`
	Events      *EventBatch      `json:"events,omitempty"`
	Event       *StoredEvent     `json:"event,omitempty"` // one entry in follow mode
	Pong        *PongResponse    `json:"pong,omitempty"`
}

type OkResponse struct {
	Message string `json:"message,omitempty"` // e.g. the server's welcome text
}

type StatusResponse struct {
	Connected bool       `json:"connected"`
	Host      string     `json:"host,omitempty"`
	Username  string     `json:"username,omitempty"`
	Channel   string     `json:"channel,omitempty"`
	Muted     bool       `json:"muted"`
	Deafened  bool       `json:"deafened"`
	Users     []UserInfo `json:"users,omitempty"`
}

type UserInfo struct {
	Session   uint32  `json:"session"`
	Name      string  `json:"name"`
	Channel   string  `json:"channel,omitempty"`
	SelfMute  bool    `json:"self_mute,omitempty"`
	SelfDeaf  bool    `json:"self_deaf,omitempty"`
	LocalMute bool    `json:"local_mute,omitempty"`
	Volume    float32 `json:"volume"`
}

type ChannelListInfo struct {
	Channels []ChannelInfo `json:"channels"`
}

type ChannelInfo struct {
	ID          uint32   `json:"id"`
	Path        string   `json:"path"`
	Description string   `json:"description,omitempty"`
	Users       []string `json:"users,omitempty"`
}

// SendReport lists per-target failures of a message send. Targets that
// succeeded are not listed; an empty report means everything went out.
type SendReport struct {
	Failures []SendFailure `json:"failures,omitempty"`
}

type SendFailure struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// StoredEvent is a session event with its journal cursor.
type StoredEvent struct {
	Cursor uint64        `json:"cursor"`
	At     int64         `json:"at"` // unix milliseconds
	Event  session.Event `json:"event"`
}

type EventBatch struct {
	Events []StoredEvent `json:"events"`
	// Next is the cursor to pass as Since on the next drain.
	Next uint64 `json:"next"`
}

type PongResponse struct {
	Version string `json:"version"`
}
