package protocol

// MessageType tags a control message on the wire. The numbering follows the
// Mumble control channel catalog so captures line up with existing tooling.
type MessageType uint16

const (
	TypeVersion       MessageType = 0
	TypeAuthenticate  MessageType = 2
	TypePing          MessageType = 3
	TypeReject        MessageType = 4
	TypeServerSync    MessageType = 5
	TypeChannelRemove MessageType = 6
	TypeChannelState  MessageType = 7
	TypeUserRemove    MessageType = 8
	TypeUserState     MessageType = 9
	TypeTextMessage   MessageType = 11
	TypeCryptSetup    MessageType = 15
)

// String returns the message type name for logging.
func (t MessageType) String() string {
	switch t {
	case TypeVersion:
		return "Version"
	case TypeAuthenticate:
		return "Authenticate"
	case TypePing:
		return "Ping"
	case TypeReject:
		return "Reject"
	case TypeServerSync:
		return "ServerSync"
	case TypeChannelRemove:
		return "ChannelRemove"
	case TypeChannelState:
		return "ChannelState"
	case TypeUserRemove:
		return "UserRemove"
	case TypeUserState:
		return "UserState"
	case TypeTextMessage:
		return "TextMessage"
	case TypeCryptSetup:
		return "CryptSetup"
	default:
		return "Unknown"
	}
}

// ControlMessage wraps all control channel payloads.
// Exactly one field is set per message; Type selects which.
type ControlMessage struct {
	Version       *Version       `json:"version,omitempty"`
	Authenticate  *Authenticate  `json:"authenticate,omitempty"`
	Ping          *Ping          `json:"ping,omitempty"`
	Reject        *Reject        `json:"reject,omitempty"`
	ServerSync    *ServerSync    `json:"server_sync,omitempty"`
	ChannelRemove *ChannelRemove `json:"channel_remove,omitempty"`
	ChannelState  *ChannelState  `json:"channel_state,omitempty"`
	UserRemove    *UserRemove    `json:"user_remove,omitempty"`
	UserState     *UserState     `json:"user_state,omitempty"`
	TextMessage   *TextMessage   `json:"text_message,omitempty"`
	CryptSetup    *CryptSetup    `json:"crypt_setup,omitempty"`
}

// Type returns the wire tag for the populated payload, or (0, false) if the
// message is empty.
func (m *ControlMessage) Type() (MessageType, bool) {
	switch {
	case m.Version != nil:
		return TypeVersion, true
	case m.Authenticate != nil:
		return TypeAuthenticate, true
	case m.Ping != nil:
		return TypePing, true
	case m.Reject != nil:
		return TypeReject, true
	case m.ServerSync != nil:
		return TypeServerSync, true
	case m.ChannelRemove != nil:
		return TypeChannelRemove, true
	case m.ChannelState != nil:
		return TypeChannelState, true
	case m.UserRemove != nil:
		return TypeUserRemove, true
	case m.UserState != nil:
		return TypeUserState, true
	case m.TextMessage != nil:
		return TypeTextMessage, true
	case m.CryptSetup != nil:
		return TypeCryptSetup, true
	}
	return 0, false
}

// ----- Handshake -----

type Version struct {
	Version uint32 `json:"version"`
	Release string `json:"release"`
	OS      string `json:"os,omitempty"`
}

type Authenticate struct {
	Username string   `json:"username"`
	Password string   `json:"password,omitempty"`
	Tokens   []string `json:"tokens,omitempty"`
}

// Reject is sent by the server when authentication fails.
type Reject struct {
	RejectType string `json:"type"` // "WrongUserPW", "UsernameInUse", "ServerFull", ...
	Reason     string `json:"reason"`
}

// CryptSetup carries the symmetric key material for the voice channel.
type CryptSetup struct {
	Method      string `json:"method"` // "aes128-gcm", "aes256-gcm", "chacha20-poly1305"
	Key         []byte `json:"key"`
	ClientNonce []byte `json:"client_nonce,omitempty"`
	ServerNonce []byte `json:"server_nonce,omitempty"`
}

// ServerSync marks the end of the initial state snapshot. MaxBandwidth and
// the session id assigned to this client become authoritative here.
type ServerSync struct {
	Session      uint32 `json:"session"`
	MaxBandwidth uint32 `json:"max_bandwidth,omitempty"`
	WelcomeText  string `json:"welcome_text,omitempty"`
}

// ----- Keepalive -----

type Ping struct {
	Timestamp int64 `json:"timestamp"`
	// Server-reported voice transport stats, informational.
	Good uint32 `json:"good,omitempty"`
	Late uint32 `json:"late,omitempty"`
	Lost uint32 `json:"lost,omitempty"`
}

// ----- Channel state -----

type ChannelState struct {
	ChannelID   uint32  `json:"channel_id"`
	Parent      *uint32 `json:"parent,omitempty"` // nil for the root channel
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
}

type ChannelRemove struct {
	ChannelID uint32 `json:"channel_id"`
}

// ----- User state -----

// UserState announces a new user or a partial update to an existing one.
// Optional fields are pointers so "absent" and "zero" stay distinct.
type UserState struct {
	Session   uint32  `json:"session"`
	Name      *string `json:"name,omitempty"`
	ChannelID *uint32 `json:"channel_id,omitempty"`
	SelfMute  *bool   `json:"self_mute,omitempty"`
	SelfDeaf  *bool   `json:"self_deaf,omitempty"`
}

type UserRemove struct {
	Session uint32 `json:"session"`
	Reason  string `json:"reason,omitempty"`
}

// ----- Text -----

type TextMessage struct {
	Actor      uint32   `json:"actor,omitempty"`
	Sessions   []uint32 `json:"session,omitempty"`    // direct recipients
	ChannelIDs []uint32 `json:"channel_id,omitempty"` // channel recipients
	Message    string   `json:"message"`
}
