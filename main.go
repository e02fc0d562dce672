package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/warehouselabs/dockcast/pkg/capture"
	"github.com/warehouselabs/dockcast/pkg/session"
	"github.com/warehouselabs/dockcast/pkg/settings"
	"github.com/warehouselabs/dockcast/pkg/signal"
)

// DefaultSignalServer is the relay the controller talks to when nothing
// else is configured.
const DefaultSignalServer = "ws://localhost:8080/ws"

// Config holds runtime configuration.
type Config struct {
	SignalURL  string
	VideoFile  string
	RetryDelay time.Duration
	MaxRetries int

	// TURN server configuration
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	Help bool
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.SignalURL, "signal", "", "Signal relay URL (overrides saved setting)")
	flag.StringVar(&config.VideoFile, "video", "", "VP8 IVF file to stream (required)")

	flag.DurationVar(&config.RetryDelay, "retry-delay", 2*time.Second, "Delay before re-negotiating after a connection failure")
	flag.IntVar(&config.MaxRetries, "max-retries", 0, "Cap on recovery attempts (0 = unlimited)")

	flag.StringVar(&config.TURNServer, "turn", "", "TURN server URL (e.g., turn:turn.example.com:3478)")
	flag.StringVar(&config.TURNUser, "turn-user", "", "TURN server username")
	flag.StringVar(&config.TURNPass, "turn-pass", "", "TURN server password")
	flag.BoolVar(&config.ForceRelay, "force-relay", false, "Force TURN relay (disable direct P2P)")

	flag.BoolVar(&config.Help, "help", false, "Show help")
	flag.BoolVar(&config.Help, "h", false, "Show help (shorthand)")

	flag.Parse()
	return config
}

func printHelp() {
	fmt.Println(`Dockcast - share a screen to a named dock display

Usage: dockcast [options]

Options:
  --signal <url>         Signal relay URL (default: ` + DefaultSignalServer + `)
  --video <path>         VP8 IVF file to stream (required; live display
                         capture is supplied by embedding deployments)
  --retry-delay <dur>    Delay before re-negotiating after failure (default: 2s)
  --max-retries <n>      Cap on recovery attempts, 0 = unlimited (default: 0)
  --help, -h             Show help

Network Options:
  --turn <url>           TURN server URL (e.g., turn:turn.example.com:3478)
  --turn-user <user>     TURN server username
  --turn-pass <pass>     TURN server password
  --force-relay          Force TURN relay (disable direct P2P connections)

TUI Controls:
  Up/Down or j/k   Pick a target screen
  Enter            Start sharing to the selected screen
  s                Stop sharing
  q                Quit`)
}

func initLogging() {
	level := slog.LevelError

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "debug", "dev":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		}
	}

	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// newSource validates the capture configuration. This binary has no live
// display capture of its own; an IVF file is the only source it can stream.
func newSource(videoFile string) (capture.Source, error) {
	if videoFile == "" {
		return nil, errors.New("no capture source: pass -video with a VP8 IVF file")
	}
	return &capture.FileSource{Path: videoFile, Loop: true}, nil
}

// app owns the transport handle and whichever session is currently active,
// and fans relay messages into it.
type app struct {
	client     *signal.Client
	source     capture.Source
	factory    session.PeerFactory
	retryDelay time.Duration
	maxRetries int

	mu      sync.Mutex
	current *session.Session
}

// start joins the target room and spins up a session sharing to it.
func (a *app) start(room string) (*session.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		switch a.current.State() {
		case session.StateTerminated:
		case session.StateIdle:
			// A prior attempt that errored back to idle; retire it before
			// starting fresh.
			a.current.Stop()
		default:
			return nil, fmt.Errorf("already sharing to %s", a.current.Room())
		}
		a.current = nil
	}
	if err := a.client.JoinRoom(room); err != nil {
		return nil, fmt.Errorf("joining room: %w", err)
	}
	s := session.New(session.Config{
		Room:       room,
		RetryDelay: a.retryDelay,
		MaxRetries: a.maxRetries,
		Logger:     slog.Default(),
	}, a.client, a.source, a.factory)
	a.current = s
	s.Share()
	return s, nil
}

// stop tears the active session down, releasing its media and connection.
func (a *app) stop() {
	a.mu.Lock()
	cur := a.current
	a.current = nil
	a.mu.Unlock()

	if cur != nil {
		cur.Stop()
	}
}

// pumpSignals routes relay traffic to the active session.
func (a *app) pumpSignals() {
	for msg := range a.client.Incoming() {
		a.mu.Lock()
		cur := a.current
		a.mu.Unlock()
		if cur != nil {
			cur.HandleSignal(msg)
		}
	}
}

func main() {
	config := parseFlags()
	if config.Help {
		printHelp()
		return
	}
	initLogging()

	source, err := newSource(config.VideoFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	mgr, err := settings.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "settings: %v\n", err)
		os.Exit(1)
	}
	saved, _ := mgr.Load()

	signalURL := config.SignalURL
	if signalURL == "" {
		signalURL = saved.SignalURL
	}
	if signalURL == "" {
		signalURL = DefaultSignalServer
	}

	client := signal.NewClient(signalURL, signal.DefaultReconnectPolicy(), slog.Default())
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach signal relay at %s: %v\n", signalURL, err)
		os.Exit(1)
	}
	defer client.Close()

	a := &app{
		client:     client,
		source:     source,
		factory: session.NewPionFactory(session.ICEConfig{
			TURNServer: config.TURNServer,
			TURNUser:   config.TURNUser,
			TURNPass:   config.TURNPass,
			ForceRelay: config.ForceRelay,
		}),
		retryDelay: config.RetryDelay,
		maxRetries: config.MaxRetries,
	}
	go a.pumpSignals()

	if err := RunTUI(a, mgr, signalURL, saved.Screen); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		os.Exit(1)
	}
	a.stop()
}
