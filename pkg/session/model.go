package session

// User mirrors one server-announced user. The server owns every field here;
// local overlays (mute, volume) live beside the map so server updates can
// never clobber them.
type User struct {
	Session    uint32
	Name       string
	Channel    uint32
	HasChannel bool // false until the server announces a channel
	SelfMute   bool
	SelfDeaf   bool
}

// Channel mirrors one server-announced channel. Channels form a tree;
// the root has HasParent false.
type Channel struct {
	ID          uint32
	Name        string
	Parent      uint32
	HasParent   bool
	Description string
}

// UserView is a read snapshot of a user merged with its local overlays.
type UserView struct {
	User
	LocalMute   bool
	Volume      float32
	ChannelName string // "" if the channel reference is dangling
}

// ChannelView is a read snapshot of a channel with its full path.
type ChannelView struct {
	Channel
	Path  string
	Users []string
}
