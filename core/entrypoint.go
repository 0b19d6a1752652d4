package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/encodeous/tint"
	"github.com/nexusauora-eng/Jade/state"
	"github.com/nexusauora-eng/Jade/telemetry"
	slogmulti "github.com/samber/slog-multi"
)

// Message is a message to inject into a running mesh
type Message struct {
	Src     state.NodeId
	Dst     state.NodeId
	Payload []byte
}

// ParseMessage parses "src:dst:text". The text may itself contain colons.
func ParseMessage(s string) (Message, error) {
	spl := strings.SplitN(s, ":", 3)
	if len(spl) != 3 || strings.TrimSpace(spl[0]) == "" || strings.TrimSpace(spl[1]) == "" {
		return Message{}, fmt.Errorf("invalid message %q, expected src:dst:text", s)
	}
	return Message{
		Src:     state.NodeId(strings.TrimSpace(spl[0])),
		Dst:     state.NodeId(strings.TrimSpace(spl[1])),
		Payload: []byte(spl[2]),
	}, nil
}

type SimOptions struct {
	Sends       []Message
	Duration    time.Duration
	MetricsAddr string
	Out         io.Writer
}

// NewLogger builds the console logger, fanned out to a file when logPath is set. The returned closer
// releases the log file.
func NewLogger(prefix string, level slog.Level, logPath string) (*slog.Logger, io.Closer, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: prefix,
			TimeFormat:   "15:04:05.000",
		}))

	var closer io.Closer = io.NopCloser(nil)
	if logPath != "" {
		err := os.MkdirAll(path.Dir(logPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		closer = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Bootstrap runs a simulation from a config file until it times out or the process is interrupted.
func Bootstrap(configPath string, verbose bool, opts SimOptions) error {
	cfg, err := state.ReadConfig(configPath)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger, closer, err := NewLogger("jade", level, cfg.LogPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	logger.Info("Jade has been initialized. To gracefully exit, send SIGINT or Ctrl+C.")
	return Run(ctx, cfg, logger, opts)
}

// Run builds the mesh described by cfg, waits for its routes to settle, injects the requested messages and
// keeps the mesh running for opts.Duration.
func Run(ctx context.Context, cfg *state.MeshCfg, log *slog.Logger, opts SimOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	outMu := sync.Mutex{}
	t, err := FromConfig(cfg, log, func(node, sender state.NodeId, payload []byte) {
		outMu.Lock()
		defer outMu.Unlock()
		_, _ = fmt.Fprintf(out, "[%s] from %s: %s\n", node, sender, payload)
	})
	if err != nil {
		return err
	}
	log.Info("built mesh", "nodes", len(t.Nodes()), "links", len(t.Edges()), "diameter", t.Diameter(), "codec", cfg.Codec, "send_mode", cfg.SendMode)

	errs := make(chan error, 1)
	if opts.MetricsAddr != "" {
		srv := telemetry.NewMetricsServer(opts.MetricsAddr, t.Metrics)
		streamCtx, stopStream := context.WithCancel(ctx)
		srv.Handle("/events", EventStream(streamCtx, t.Bus, log))
		srv.StartAsync(errs)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Stop(sctx)
		}()
		defer stopStream()
		log.Info("serving metrics", "addr", opts.MetricsAddr, "events", "/events")
	}

	t.StartAll()
	defer t.StopAll()

	rounds, err := t.Converge(ctx)
	if err != nil {
		return err
	}
	log.Info("routes converged", "rounds", rounds)
	for _, n := range t.Nodes() {
		log.Debug("routing table", "node", n.Id(), "routes", "\n"+n.Table().String())
	}

	for _, m := range opts.Sends {
		if err := t.Send(m.Src, m.Dst, m.Payload); err != nil {
			log.Warn("failed to send message", "src", m.Src, "dst", m.Dst, "error", err)
		}
	}

	timer := time.NewTimer(opts.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		log.Info("simulation finished", "duration", opts.Duration)
	case <-ctx.Done():
		log.Info("simulation interrupted", "reason", context.Cause(ctx))
	case err := <-errs:
		return fmt.Errorf("metrics server: %w", err)
	}
	if dropped := t.Bus.Dropped(); dropped > 0 {
		log.Warn("event subscribers missed events", "count", dropped)
	}
	return nil
}
