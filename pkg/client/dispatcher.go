package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sornas/mum/pkg/config"
	"github.com/sornas/mum/pkg/ipc"
	"github.com/sornas/mum/pkg/session"
	"github.com/sornas/mum/pkg/version"
)

// Dispatcher translates IPC requests into engine commands and typed
// responses. It owns the daemon's view of the config file so reload requests
// have somewhere to land.
type Dispatcher struct {
	engine     *Engine
	configPath string
}

// NewDispatcher wires an engine to the IPC request schema. configPath may be
// empty, in which case config reloads report a state error.
func NewDispatcher(engine *Engine, configPath string) *Dispatcher {
	return &Dispatcher{engine: engine, configPath: configPath}
}

// Handle implements ipc.Handler. Events requests never reach this point;
// the IPC server answers those straight from the journal.
func (d *Dispatcher) Handle(ctx context.Context, req *ipc.Request) *ipc.Response {
	switch {
	case req.Connect != nil:
		return d.handleConnect(ctx, req.Connect)
	case req.Disconnect != nil:
		return errResponse(d.engine.Disconnect())
	case req.Status != nil:
		return d.handleStatus()
	case req.ChannelList != nil:
		return d.handleChannelList()
	case req.ChannelJoin != nil:
		return errResponse(d.engine.JoinChannel(req.ChannelJoin.Identifier))
	case req.MuteSelf != nil:
		return errResponse(d.engine.SetSelfMute(req.MuteSelf.Mute))
	case req.DeafenSelf != nil:
		return errResponse(d.engine.SetSelfDeafen(req.DeafenSelf.Deafen))
	case req.MuteUser != nil:
		return errResponse(d.engine.MuteUser(req.MuteUser.Username, req.MuteUser.Mute))
	case req.SetVolume != nil:
		return d.handleSetVolume(req.SetVolume)
	case req.SendMessage != nil:
		return d.handleSendMessage(req.SendMessage)
	case req.ConfigReload != nil:
		return d.handleConfigReload()
	case req.Ping != nil:
		return &ipc.Response{Pong: &ipc.PongResponse{Version: version.String()}}
	}
	return ipc.Errorf(ipc.CodeBadRequest, "empty request")
}

func (d *Dispatcher) handleConnect(ctx context.Context, req *ipc.ConnectRequest) *ipc.Response {
	if req.Host == "" || req.Username == "" {
		return ipc.Errorf(ipc.CodeBadRequest, "connect requires host and username")
	}
	port := req.Port
	if port == 0 {
		port = config.DefaultPort
	}
	welcome, err := d.engine.Connect(ctx, ConnectParams{
		Host:              req.Host,
		Port:              port,
		Username:          req.Username,
		Password:          req.Password,
		AcceptInvalidCert: req.AcceptInvalidCert,
	})
	if err != nil {
		return errResponse(err)
	}
	return &ipc.Response{Ok: &ipc.OkResponse{Message: welcome}}
}

func (d *Dispatcher) handleStatus() *ipc.Response {
	state := d.engine.Session()
	if state == nil {
		return &ipc.Response{Status: &ipc.StatusResponse{Connected: false}}
	}
	muted, deafened := state.SelfMuted()
	status := &ipc.StatusResponse{
		Connected: true,
		Host:      state.Host(),
		Username:  state.Username(),
		Muted:     muted,
		Deafened:  deafened,
	}
	if ch, ok := state.CurrentChannel(); ok {
		status.Channel = ch.Path
	}
	for _, u := range state.Users() {
		status.Users = append(status.Users, ipc.UserInfo{
			Session:   u.Session,
			Name:      u.Name,
			Channel:   u.ChannelName,
			SelfMute:  u.SelfMute,
			SelfDeaf:  u.SelfDeaf,
			LocalMute: u.LocalMute,
			Volume:    u.Volume,
		})
	}
	return &ipc.Response{Status: status}
}

func (d *Dispatcher) handleChannelList() *ipc.Response {
	state := d.engine.Session()
	if state == nil {
		return errResponse(ErrNotConnected)
	}
	list := &ipc.ChannelListInfo{}
	for _, ch := range state.Channels() {
		info := ipc.ChannelInfo{
			ID:          ch.ID,
			Path:        ch.Path,
			Description: ch.Description,
		}
		info.Users = append(info.Users, ch.Users...)
		list.Channels = append(list.Channels, info)
	}
	return &ipc.Response{ChannelList: list}
}

func (d *Dispatcher) handleSetVolume(req *ipc.SetVolumeRequest) *ipc.Response {
	switch req.Scope {
	case ipc.VolumeInput:
		return errResponse(d.engine.SetInputVolume(req.Volume))
	case ipc.VolumeOutput:
		return errResponse(d.engine.SetOutputVolume(req.Volume))
	case ipc.VolumeUser:
		if req.Username == "" {
			return ipc.Errorf(ipc.CodeBadRequest, "user volume requires a username")
		}
		return errResponse(d.engine.SetUserVolume(req.Username, req.Volume))
	}
	return ipc.Errorf(ipc.CodeBadRequest, "unknown volume scope %q", req.Scope)
}

func (d *Dispatcher) handleSendMessage(req *ipc.SendMessageRequest) *ipc.Response {
	if req.Message == "" {
		return ipc.Errorf(ipc.CodeBadRequest, "empty message")
	}
	if len(req.Users) == 0 && len(req.Channels) == 0 {
		return ipc.Errorf(ipc.CodeBadRequest, "no message targets")
	}
	failures, err := d.engine.SendText(req.Message, req.Users, req.Channels, req.Recursive)
	if err != nil {
		return errResponse(err)
	}
	report := &ipc.SendReport{}
	for _, f := range failures {
		report.Failures = append(report.Failures, ipc.SendFailure{Target: f.Target, Reason: f.Reason})
	}
	return &ipc.Response{SendReport: report}
}

// handleConfigReload re-reads the config file and applies the audio section
// to the live engine. Saved-server changes take effect on the next connect.
func (d *Dispatcher) handleConfigReload() *ipc.Response {
	if d.configPath == "" {
		return ipc.Errorf(ipc.CodeState, "daemon started without a config file")
	}
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return ipc.Errorf(ipc.CodeBadRequest, "reload: %v", err)
	}
	if cfg.Audio.InputVolume != nil {
		if err := d.engine.SetInputVolume(*cfg.Audio.InputVolume); err != nil {
			return errResponse(err)
		}
	}
	if cfg.Audio.OutputVolume != nil {
		if err := d.engine.SetOutputVolume(*cfg.Audio.OutputVolume); err != nil {
			return errResponse(err)
		}
	}
	slog.Info("config reloaded", "path", d.configPath)
	return &ipc.Response{Ok: &ipc.OkResponse{Message: "config reloaded"}}
}

// errResponse maps typed engine and session errors onto the IPC error
// taxonomy. nil becomes a bare ok.
func errResponse(err error) *ipc.Response {
	if err == nil {
		return &ipc.Response{Ok: &ipc.OkResponse{}}
	}

	var connErr *ConnectionError
	var authErr *AuthenticationError
	var audioErr *AudioDeviceError
	switch {
	case errors.As(err, &connErr):
		return ipc.Errorf(ipc.CodeConnection, "%v", err)
	case errors.As(err, &authErr):
		return ipc.Errorf(ipc.CodeAuthentication, "%v", err)
	case errors.As(err, &audioErr):
		return ipc.Errorf(ipc.CodeAudioDevice, "%v", err)
	case errors.Is(err, ErrKeepaliveTimeout):
		return ipc.Errorf(ipc.CodeKeepaliveTimeout, "%v", err)
	case errors.Is(err, session.ErrInvalidVolume):
		return ipc.Errorf(ipc.CodeInvalidVolume, "%v", err)
	case errors.Is(err, ErrAlreadyConnected),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, session.ErrUnknownUser),
		errors.Is(err, session.ErrUnknownChannel),
		errors.Is(err, session.ErrAmbiguousChannel):
		return ipc.Errorf(ipc.CodeState, "%v", err)
	}
	return ipc.Errorf(ipc.CodeProtocol, "%v", err)
}
