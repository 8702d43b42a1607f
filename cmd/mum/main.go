// Command mum is the controller for the mumd daemon. Every subcommand is a
// short-lived request over the daemon's Unix socket; mum itself holds no
// state beyond the saved-server config file.
package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/sornas/mum/pkg/config"
	"github.com/sornas/mum/pkg/ipc"
	"github.com/sornas/mum/pkg/version"
)

const usage = `usage: mum <command> [arguments]

Commands:
  connect <host|server> [flags]   connect to a server (by address or saved name)
  disconnect                      leave the current server
  status                          show connection and user state
  channels                        list channels with their users
  join <channel>                  move to a channel (path suffix, e.g. Root/Gaming)
  mute [user]                     mute yourself, or a user locally
  unmute [user]                   undo mute
  deafen                          stop hearing anyone (also mutes)
  undeafen                        hear again
  volume <input|output> <value>   set a master volume (1.0 = unity)
  volume user <name> <value>      set one user's incoming volume
  message <text> [flags]          send a text message to users or channels
  events [flags]                  print past events, optionally follow live
  server list                     list saved servers
  config-reload                   make the daemon re-read its config file
  ping                            check the daemon is alive

Global flags:
  --socket <path>   daemon socket (default ` + ipc.DefaultSocketPath + `)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mum: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("mum", flag.ContinueOnError)
	global.SetInterspersed(false)
	socketPath := global.String("socket", ipc.DefaultSocketPath, "daemon socket path")
	configPath := global.String("config", config.DefaultPath(), "config file path")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("no command")
	}
	cmd, cmdArgs := rest[0], rest[1:]

	switch cmd {
	case "connect":
		return cmdConnect(*socketPath, *configPath, cmdArgs)
	case "disconnect":
		return oneShot(*socketPath, &ipc.Request{Disconnect: &ipc.DisconnectRequest{}}, printOk)
	case "status":
		return oneShot(*socketPath, &ipc.Request{Status: &ipc.StatusRequest{}}, printStatus)
	case "channels":
		return oneShot(*socketPath, &ipc.Request{ChannelList: &ipc.ChannelListRequest{}}, printChannels)
	case "join":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: mum join <channel>")
		}
		return oneShot(*socketPath, &ipc.Request{ChannelJoin: &ipc.ChannelJoinRequest{Identifier: cmdArgs[0]}}, printOk)
	case "mute":
		return cmdMute(*socketPath, cmdArgs, true)
	case "unmute":
		return cmdMute(*socketPath, cmdArgs, false)
	case "deafen":
		return oneShot(*socketPath, &ipc.Request{DeafenSelf: &ipc.DeafenSelfRequest{Deafen: true}}, printOk)
	case "undeafen":
		return oneShot(*socketPath, &ipc.Request{DeafenSelf: &ipc.DeafenSelfRequest{Deafen: false}}, printOk)
	case "volume":
		return cmdVolume(*socketPath, cmdArgs)
	case "message":
		return cmdMessage(*socketPath, cmdArgs)
	case "events":
		return cmdEvents(*socketPath, cmdArgs)
	case "server":
		return cmdServer(*configPath, cmdArgs)
	case "config-reload":
		return oneShot(*socketPath, &ipc.Request{ConfigReload: &ipc.ConfigReloadRequest{}}, printOk)
	case "ping":
		return oneShot(*socketPath, &ipc.Request{Ping: &ipc.PingRequest{}}, func(resp *ipc.Response) error {
			fmt.Printf("mumd %s (mum %s)\n", resp.Pong.Version, version.String())
			return nil
		})
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

// oneShot dials the daemon, performs one request and hands the response to
// print. A daemon that is not running comes back as a plain message.
func oneShot(socketPath string, req *ipc.Request, print func(*ipc.Response) error) error {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return normalize(err)
	}
	defer client.Close()
	resp, err := client.Do(req)
	if err != nil {
		return normalize(err)
	}
	return print(resp)
}

func normalize(err error) error {
	if err == ipc.ErrDaemonNotRunning {
		return fmt.Errorf("mumd is not running (start it first)")
	}
	return err
}

func printOk(resp *ipc.Response) error {
	if resp.Ok != nil && resp.Ok.Message != "" {
		fmt.Println(resp.Ok.Message)
	}
	return nil
}

func cmdConnect(socketPath, configPath string, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	port := fs.Uint16("port", config.DefaultPort, "server port")
	username := fs.StringP("username", "u", "", "username (required for raw addresses)")
	password := fs.String("password", "", "server password")
	insecure := fs.Bool("accept-invalid-cert", false, "skip TLS certificate verification")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: mum connect <host|server> [flags]")
	}
	target := fs.Arg(0)

	req := ipc.ConnectRequest{
		Host:              target,
		Port:              *port,
		Username:          *username,
		Password:          *password,
		AcceptInvalidCert: *insecure,
	}

	// A bare name may be a saved server; the config entry wins over flags
	// it sets, flags fill the rest.
	cfg, err := config.Load(configPath)
	if err == nil {
		if t, rerr := cfg.Resolve(target, *username); rerr == nil {
			req.Host = t.Host
			req.Port = t.Port
			req.Username = t.Username
			if t.Password != "" {
				req.Password = t.Password
			}
		}
	}
	if req.Username == "" {
		return fmt.Errorf("a username is required (--username)")
	}

	return oneShot(socketPath, &ipc.Request{Connect: &req}, func(resp *ipc.Response) error {
		fmt.Printf("connected to %s\n", req.Host)
		if resp.Ok != nil && resp.Ok.Message != "" {
			fmt.Println(resp.Ok.Message)
		}
		return nil
	})
}

func cmdMute(socketPath string, args []string, mute bool) error {
	if len(args) == 0 {
		return oneShot(socketPath, &ipc.Request{MuteSelf: &ipc.MuteSelfRequest{Mute: mute}}, printOk)
	}
	return oneShot(socketPath, &ipc.Request{MuteUser: &ipc.MuteUserRequest{
		Username: args[0],
		Mute:     mute,
	}}, printOk)
}

func cmdVolume(socketPath string, args []string) error {
	var req ipc.SetVolumeRequest
	switch {
	case len(args) == 2 && (args[0] == "input" || args[0] == "output"):
		req.Scope = ipc.VolumeScope(args[0])
		if _, err := fmt.Sscanf(args[1], "%f", &req.Volume); err != nil {
			return fmt.Errorf("bad volume %q", args[1])
		}
	case len(args) == 3 && args[0] == "user":
		req.Scope = ipc.VolumeUser
		req.Username = args[1]
		if _, err := fmt.Sscanf(args[2], "%f", &req.Volume); err != nil {
			return fmt.Errorf("bad volume %q", args[2])
		}
	default:
		return fmt.Errorf("usage: mum volume <input|output> <value> | mum volume user <name> <value>")
	}
	return oneShot(socketPath, &ipc.Request{SetVolume: &req}, printOk)
}

func cmdMessage(socketPath string, args []string) error {
	fs := flag.NewFlagSet("message", flag.ContinueOnError)
	users := fs.StringSliceP("user", "u", nil, "recipient user (repeatable)")
	channels := fs.StringSliceP("channel", "c", nil, "recipient channel (repeatable)")
	recursive := fs.BoolP("recursive", "r", false, "include all subchannels of each channel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: mum message <text> [--user u]... [--channel c]... [-r]")
	}
	req := ipc.SendMessageRequest{
		Message:   fs.Arg(0),
		Users:     *users,
		Channels:  *channels,
		Recursive: *recursive,
	}
	return oneShot(socketPath, &ipc.Request{SendMessage: &req}, func(resp *ipc.Response) error {
		if resp.SendReport == nil || len(resp.SendReport.Failures) == 0 {
			return nil
		}
		for _, f := range resp.SendReport.Failures {
			fmt.Fprintf(os.Stderr, "failed: %s: %s\n", f.Target, f.Reason)
		}
		return fmt.Errorf("%d target(s) failed", len(resp.SendReport.Failures))
	})
}

func cmdEvents(socketPath string, args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	since := fs.Uint64("since", 0, "replay events after this cursor")
	follow := fs.BoolP("follow", "f", false, "keep printing events as they happen")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := ipc.Dial(socketPath)
	if err != nil {
		return normalize(err)
	}
	defer client.Close()

	if !*follow {
		resp, err := client.Do(&ipc.Request{Events: &ipc.EventsRequest{Since: *since}})
		if err != nil {
			return normalize(err)
		}
		for _, ev := range resp.Events.Events {
			printEvent(&ev)
		}
		return nil
	}

	return client.Follow(&ipc.EventsRequest{Since: *since}, func(resp *ipc.Response) error {
		switch {
		case resp.Events != nil:
			for _, ev := range resp.Events.Events {
				printEvent(&ev)
			}
		case resp.Event != nil:
			printEvent(resp.Event)
		}
		return nil
	})
}

func printEvent(ev *ipc.StoredEvent) {
	at := time.UnixMilli(ev.At).Format("15:04:05")
	e := ev.Event
	switch {
	case e.User != "" && e.Channel != "":
		fmt.Printf("%8d %s %-18s %s in %s\n", ev.Cursor, at, e.Kind, e.User, e.Channel)
	case e.Message != "":
		fmt.Printf("%8d %s %-18s %s: %s\n", ev.Cursor, at, e.Kind, e.User, e.Message)
	case e.User != "":
		fmt.Printf("%8d %s %-18s %s\n", ev.Cursor, at, e.Kind, e.User)
	default:
		fmt.Printf("%8d %s %-18s\n", ev.Cursor, at, e.Kind)
	}
}

func printStatus(resp *ipc.Response) error {
	st := resp.Status
	if !st.Connected {
		fmt.Println("not connected")
		return nil
	}
	fmt.Printf("connected to %s as %s\n", st.Host, st.Username)
	if st.Channel != "" {
		fmt.Printf("channel: %s\n", st.Channel)
	}
	if st.Muted || st.Deafened {
		fmt.Printf("muted: %v  deafened: %v\n", st.Muted, st.Deafened)
	}
	for _, u := range st.Users {
		marks := ""
		if u.SelfMute {
			marks += " [muted]"
		}
		if u.SelfDeaf {
			marks += " [deafened]"
		}
		if u.LocalMute {
			marks += " [muted locally]"
		}
		fmt.Printf("  %-20s %s%s\n", u.Name, u.Channel, marks)
	}
	return nil
}

func printChannels(resp *ipc.Response) error {
	for _, ch := range resp.ChannelList.Channels {
		fmt.Println(ch.Path)
		for _, name := range ch.Users {
			fmt.Printf("  - %s\n", name)
		}
	}
	return nil
}

func cmdServer(configPath string, args []string) error {
	if len(args) == 0 || args[0] != "list" {
		return fmt.Errorf("usage: mum server list")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Servers) == 0 {
		fmt.Println("no saved servers")
		return nil
	}
	for _, s := range cfg.Servers {
		port := s.Port
		if port == 0 {
			port = config.DefaultPort
		}
		fmt.Printf("%-20s %s:%d\n", s.Name, s.Host, port)
	}
	return nil
}
