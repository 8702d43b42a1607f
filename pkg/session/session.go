// Package session keeps the local mirror of server-announced users and
// channels, plus the local overlays (per-user mute and volume) that the
// server never sees.
//
// Mutation follows a single-writer discipline: only the control channel
// read loop applies server events. Everything else reads snapshots or asks
// the command dispatcher, which funnels into the same loop. Reads never
// touch the network.
package session

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// State is the authoritative local mirror of one server's state.
type State struct {
	mu sync.RWMutex

	users    map[uint32]*User
	channels map[uint32]*Channel

	// Local overlays keyed by session id. Kept apart from the user records
	// so server-driven updates cannot clear them.
	localMute map[uint32]bool
	volumes   map[uint32]float32

	username    string
	host        string
	selfSession uint32
	selfKnown   bool
	muted       bool
	deafened    bool

	// synced flips when the server's initial snapshot completes. Events are
	// suppressed before that so the snapshot does not replay as a burst of
	// "user joined" notifications.
	synced bool
}

// NewState creates an empty state for a connection to host as username.
func NewState(host, username string) *State {
	return &State{
		users:     make(map[uint32]*User),
		channels:  make(map[uint32]*Channel),
		localMute: make(map[uint32]bool),
		volumes:   make(map[uint32]float32),
		username:  username,
		host:      host,
	}
}

// SetSynced marks the initial snapshot complete. Events emit from here on.
func (s *State) SetSynced(selfSession uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = true
	s.selfSession = selfSession
	s.selfKnown = true
}

// Synced reports whether the initial snapshot has completed.
func (s *State) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// ApplyUserState creates or updates a user from a server announcement and
// returns the events it implies. Events are nil before the snapshot
// completes and for changes to this client's own user.
func (s *State) ApplyUserState(sessionID uint32, name *string, channelID *uint32, selfMute, selfDeaf *bool) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.users[sessionID]
	if !exists {
		u = &User{Session: sessionID}
		if name != nil {
			u.Name = *name
			if *name == s.username && !s.selfKnown {
				s.selfSession = sessionID
				s.selfKnown = true
			}
		}
		s.users[sessionID] = u
	}

	var events []Event
	self := s.selfKnown && sessionID == s.selfSession
	emit := s.synced && !self

	if !exists {
		if name != nil {
			u.Name = *name
		}
		if channelID != nil {
			u.Channel = *channelID
			u.HasChannel = true
		}
		if selfMute != nil {
			u.SelfMute = *selfMute
		}
		if selfDeaf != nil {
			u.SelfDeaf = *selfDeaf
		}
		if emit {
			events = append(events, Event{
				Kind:    EventUserConnected,
				Session: sessionID,
				User:    u.Name,
				Channel: s.channelNameLocked(u.Channel, u.HasChannel),
			})
		}
		return events
	}

	if name != nil && *name != u.Name {
		old := u.Name
		u.Name = *name
		if emit {
			events = append(events, Event{
				Kind:    EventUserRenamed,
				Session: sessionID,
				User:    u.Name,
				Message: old,
			})
		}
	}
	if channelID != nil && (!u.HasChannel || *channelID != u.Channel) {
		u.Channel = *channelID
		u.HasChannel = true
		if emit {
			events = append(events, Event{
				Kind:    EventUserMoved,
				Session: sessionID,
				User:    u.Name,
				Channel: s.channelNameLocked(u.Channel, true),
			})
		}
	}
	muteChanged := false
	if selfMute != nil && *selfMute != u.SelfMute {
		u.SelfMute = *selfMute
		muteChanged = true
	}
	if selfDeaf != nil && *selfDeaf != u.SelfDeaf {
		u.SelfDeaf = *selfDeaf
		muteChanged = true
	}
	if muteChanged && emit {
		events = append(events, Event{
			Kind:     EventUserMuteChanged,
			Session:  sessionID,
			User:     u.Name,
			Muted:    u.SelfMute,
			Deafened: u.SelfDeaf,
		})
	}
	return events
}

// ApplyUserRemove drops a user and its overlays. Removing an unknown session
// is a no-op that returns ErrUnknownUser so the caller can log it.
func (s *State) ApplyUserRemove(sessionID uint32) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[sessionID]
	if !ok {
		return nil, ErrUnknownUser
	}
	delete(s.users, sessionID)
	delete(s.localMute, sessionID)
	delete(s.volumes, sessionID)

	if !s.synced || (s.selfKnown && sessionID == s.selfSession) {
		return nil, nil
	}
	return []Event{{
		Kind:    EventUserDisconnected,
		Session: sessionID,
		User:    u.Name,
	}}, nil
}

// ApplyChannelState creates or updates a channel from a server announcement.
func (s *State) ApplyChannelState(channelID uint32, parent *uint32, name, description string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.channels[channelID]
	if !exists {
		c = &Channel{ID: channelID}
		s.channels[channelID] = c
	}

	var events []Event
	if name != "" && name != c.Name {
		old := c.Name
		c.Name = name
		if s.synced {
			kind := EventChannelAdded
			if exists && old != "" {
				kind = EventChannelRenamed
			}
			events = append(events, Event{Kind: kind, Channel: c.Name, Message: old})
		}
	} else if !exists && s.synced {
		events = append(events, Event{Kind: EventChannelAdded, Channel: c.Name})
	}
	if parent != nil {
		c.Parent = *parent
		c.HasParent = true
	}
	if description != "" {
		c.Description = description
	}
	return events
}

// ApplyChannelRemove drops a channel. Users referencing it keep a dangling
// reference; reads report their channel as unknown until the server's
// compensating move arrives.
func (s *State) ApplyChannelRemove(channelID uint32) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[channelID]
	if !ok {
		return nil, ErrUnknownChannel
	}
	delete(s.channels, channelID)
	if !s.synced {
		return nil, nil
	}
	return []Event{{Kind: EventChannelRemoved, Channel: c.Name}}, nil
}

// SetLocalMute applies a client-side mute overlay for a session.
func (s *State) SetLocalMute(sessionID uint32, mute bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[sessionID]; !ok {
		return ErrUnknownUser
	}
	if mute {
		s.localMute[sessionID] = true
	} else {
		delete(s.localMute, sessionID)
	}
	return nil
}

// SetLocalVolume applies an incoming-volume multiplier for a session.
// Non-finite or negative values are rejected without any state change.
func (s *State) SetLocalVolume(sessionID uint32, volume float32) error {
	if math.IsNaN(float64(volume)) || math.IsInf(float64(volume), 0) || volume < 0 {
		return ErrInvalidVolume
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[sessionID]; !ok {
		return ErrUnknownUser
	}
	if volume == 1.0 {
		delete(s.volumes, sessionID)
	} else {
		s.volumes[sessionID] = volume
	}
	return nil
}

// Overlay returns the local mute flag and volume multiplier for a session.
// Unset overlays read as (false, 1.0).
func (s *State) Overlay(sessionID uint32) (bool, float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vol, ok := s.volumes[sessionID]
	if !ok {
		vol = 1.0
	}
	return s.localMute[sessionID], vol
}

// SetSelfMuted records this client's own mute/deafen flags.
// Deafening implies muting, matching the usual client behavior.
func (s *State) SetSelfMuted(muted, deafened bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted || deafened
	s.deafened = deafened
}

// SelfMuted returns this client's own mute/deafen flags.
func (s *State) SelfMuted() (muted, deafened bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted, s.deafened
}

// SelfSession returns our server-assigned session id, if announced yet.
func (s *State) SelfSession() (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfSession, s.selfKnown
}

// Host returns the server address this state mirrors.
func (s *State) Host() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

// Username returns the local user's name.
func (s *State) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// CurrentChannel returns the channel this client is in.
func (s *State) CurrentChannel() (ChannelView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.selfKnown {
		return ChannelView{}, false
	}
	u, ok := s.users[s.selfSession]
	if !ok || !u.HasChannel {
		return ChannelView{}, false
	}
	c, ok := s.channels[u.Channel]
	if !ok {
		return ChannelView{}, false
	}
	return s.channelViewLocked(c), true
}

// UserBySession returns a merged snapshot of one user.
func (s *State) UserBySession(sessionID uint32) (UserView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[sessionID]
	if !ok {
		return UserView{}, false
	}
	return s.userViewLocked(u), true
}

// UserByName resolves a display name to a session id.
func (s *State) UserByName(name string) (UserView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Name == name {
			return s.userViewLocked(u), true
		}
	}
	return UserView{}, false
}

// Users returns merged snapshots of all users, ordered by session id.
func (s *State) Users() []UserView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := make([]UserView, 0, len(s.users))
	for _, u := range s.users {
		views = append(views, s.userViewLocked(u))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Session < views[j].Session })
	return views
}

// Channels returns snapshots of all channels, ordered by path.
func (s *State) Channels() []ChannelView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := make([]ChannelView, 0, len(s.channels))
	for _, c := range s.channels {
		views = append(views, s.channelViewLocked(c))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Path < views[j].Path })
	return views
}

// ChannelByID returns a snapshot of one channel.
func (s *State) ChannelByID(channelID uint32) (ChannelView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[channelID]
	if !ok {
		return ChannelView{}, false
	}
	return s.channelViewLocked(c), true
}

// MatchChannel resolves a channel identifier to an id. The identifier is a
// path suffix ("Gaming" or "Root/Gaming"); exact-case matches win, then a
// case-insensitive pass. More than one match is ambiguous.
func (s *State) MatchChannel(identifier string) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []uint32
	for id, c := range s.channels {
		if pathMatches(s.pathLocked(c), identifier, false) {
			matches = append(matches, id)
		}
	}
	if len(matches) == 0 {
		for id, c := range s.channels {
			if pathMatches(s.pathLocked(c), identifier, true) {
				matches = append(matches, id)
			}
		}
	}
	switch len(matches) {
	case 0:
		return 0, ErrUnknownChannel
	case 1:
		return matches[0], nil
	default:
		return 0, ErrAmbiguousChannel
	}
}

// Descendants returns channelID and every channel below it, each exactly
// once. The walk carries a visited set so a cyclic parent graph (which the
// server should never send) cannot loop it.
func (s *State) Descendants(channelID uint32) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.channels[channelID]; !ok {
		return nil
	}

	children := make(map[uint32][]uint32, len(s.channels))
	for id, c := range s.channels {
		if c.HasParent {
			children[c.Parent] = append(children[c.Parent], id)
		}
	}

	visited := map[uint32]bool{channelID: true}
	order := []uint32{channelID}
	queue := []uint32{channelID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		kids := children[id]
		sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
		for _, kid := range kids {
			if visited[kid] {
				continue
			}
			visited[kid] = true
			order = append(order, kid)
			queue = append(queue, kid)
		}
	}
	return order
}

func (s *State) userViewLocked(u *User) UserView {
	vol, ok := s.volumes[u.Session]
	if !ok {
		vol = 1.0
	}
	return UserView{
		User:        *u,
		LocalMute:   s.localMute[u.Session],
		Volume:      vol,
		ChannelName: s.channelNameLocked(u.Channel, u.HasChannel),
	}
}

func (s *State) channelViewLocked(c *Channel) ChannelView {
	var users []string
	for _, u := range s.users {
		if u.HasChannel && u.Channel == c.ID {
			users = append(users, u.Name)
		}
	}
	sort.Strings(users)
	return ChannelView{
		Channel: *c,
		Path:    s.pathLocked(c),
		Users:   users,
	}
}

// channelNameLocked resolves a channel reference. A dangling reference
// reads as "" rather than failing.
func (s *State) channelNameLocked(channelID uint32, has bool) string {
	if !has {
		return ""
	}
	c, ok := s.channels[channelID]
	if !ok {
		return ""
	}
	return c.Name
}

// pathLocked builds the root-to-channel path ("Root/Gaming/AFK"), bounded by
// a visited set against parent cycles.
func (s *State) pathLocked(c *Channel) string {
	parts := []string{c.Name}
	visited := map[uint32]bool{c.ID: true}
	cur := c
	for cur.HasParent {
		parent, ok := s.channels[cur.Parent]
		if !ok || visited[parent.ID] {
			break
		}
		visited[parent.ID] = true
		parts = append([]string{parent.Name}, parts...)
		cur = parent
	}
	return strings.Join(parts, "/")
}

// pathMatches reports whether identifier is a component-aligned suffix of
// path: "Gaming" matches "Root/Gaming" but not "Root/PubGaming".
func pathMatches(path, identifier string, fold bool) bool {
	if fold {
		path = strings.ToLower(path)
		identifier = strings.ToLower(identifier)
	}
	if path == identifier {
		return true
	}
	return strings.HasSuffix(path, "/"+identifier)
}
