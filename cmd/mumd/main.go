// Command mumd is the voice client daemon. It holds the connection to a
// voice server, runs the audio pipelines and answers controller requests on
// a Unix socket. Use the mum command to talk to it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sornas/mum/pkg/audio"
	"github.com/sornas/mum/pkg/client"
	"github.com/sornas/mum/pkg/config"
	"github.com/sornas/mum/pkg/eventlog"
	"github.com/sornas/mum/pkg/ipc"
	"github.com/sornas/mum/pkg/logging"
	"github.com/sornas/mum/pkg/session"
	"github.com/sornas/mum/pkg/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mumd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := config.NewDaemonEnvFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if err := logging.Setup(logging.Options{
		Level:  env.LogLevel,
		Format: env.LogFormat,
		Output: os.Stderr,
	}); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	configPath := env.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	journalPath := env.EventLogPath
	if journalPath == "" {
		journalPath = filepath.Join(filepath.Dir(configPath), "events.db")
	}
	journal, err := eventlog.Open(journalPath)
	if err != nil {
		return fmt.Errorf("open event journal: %w", err)
	}
	defer journal.Close()

	if err := audio.Initialize(); err != nil {
		// Keep running: control, text and events all work without sound.
		slog.Error("audio subsystem unavailable", "err", err)
	} else {
		defer audio.Terminate()
	}

	engine := client.NewEngine(client.Options{
		KeepaliveInterval: env.KeepaliveInterval,
		KeepaliveTimeout:  env.KeepaliveTimeout,
		StreamTimeout:     env.StreamTimeout,
		JitterDepth:       env.JitterDepth,
		InputDevice:       cfg.Audio.InputDevice,
		OutputDevice:      cfg.Audio.OutputDevice,
	})
	if cfg.Audio.InputVolume != nil {
		if err := engine.SetInputVolume(*cfg.Audio.InputVolume); err != nil {
			return fmt.Errorf("config: input volume: %w", err)
		}
	}
	if cfg.Audio.OutputVolume != nil {
		if err := engine.SetOutputVolume(*cfg.Audio.OutputVolume); err != nil {
			return fmt.Errorf("config: output volume: %w", err)
		}
	}
	return serve(ctx, engine, journal, env, configPath)
}

func serve(ctx context.Context, engine *client.Engine, journal *eventlog.Log, env *config.DaemonEnv, configPath string) error {
	engine.SetEventSink(func(ev session.Event) {
		if err := journal.Append(ev); err != nil {
			slog.Error("append event", "kind", ev.Kind, "err", err)
		}
	})

	if env.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			slog.Info("metrics listening", "addr", env.MetricsAddr)
			if err := http.ListenAndServe(env.MetricsAddr, mux); err != nil {
				slog.Error("metrics server", "err", err)
			}
		}()
	}

	dispatcher := client.NewDispatcher(engine, configPath)
	server := ipc.NewServer(env.SocketPath, dispatcher.Handle, journal)

	slog.Info("mumd starting", "version", version.String(), "socket", env.SocketPath)
	err := server.Serve(ctx)

	// Socket is down; collapse any live session before exiting.
	if derr := engine.Disconnect(); derr == nil {
		engine.Wait()
	}
	return err
}
