// Command server runs the standalone dockcast signaling relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	flag "github.com/spf13/pflag"

	sig "github.com/warehouselabs/dockcast/pkg/signal"
)

var (
	ko = koanf.New(".")

	// Version of the build injected at build time.
	buildString = "unknown"
)

type serverConfig struct {
	Address         string        `koanf:"address"`
	ReadBuffer      int           `koanf:"read_buffer"`
	WriteBuffer     int           `koanf:"write_buffer"`
	SendQueue       int           `koanf:"send_queue"`
	MaxMessageBytes int64         `koanf:"max_message_bytes"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	PongTimeout     time.Duration `koanf:"pong_timeout"`
	Debug           bool          `koanf:"debug"`
}

func loadConfig() serverConfig {
	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}
	f.String("config", "", "Path to a TOML config file")
	f.String("address", ":8080", "Address to listen on")
	f.Bool("debug", false, "Enable debug logging")
	f.Bool("version", false, "Show build version")
	f.Parse(os.Args[1:])

	if ok, _ := f.GetBool("version"); ok {
		fmt.Println(buildString)
		os.Exit(0)
	}

	if cFile, _ := f.GetString("config"); cFile != "" {
		if err := ko.Load(file.Provider(cFile), toml.Parser()); err != nil {
			fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
			os.Exit(1)
		}
	}

	// Merge env vars: DOCKCAST_ADDRESS, DOCKCAST_PONG_TIMEOUT etc.
	ko.Load(env.Provider("DOCKCAST_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "DOCKCAST_"))
	}), nil)

	// Flags take precedence.
	ko.Load(posflag.Provider(f, ".", ko), nil)

	cfg := serverConfig{}
	if err := ko.Unmarshal("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error unmarshalling config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func main() {
	cfg := loadConfig()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	relay := sig.NewServer(logger, sig.ServerOptions{
		ReadBufferSize:  cfg.ReadBuffer,
		WriteBufferSize: cfg.WriteBuffer,
		SendQueueSize:   cfg.SendQueue,
		MaxMessageSize:  cfg.MaxMessageBytes,
		WriteTimeout:    cfg.WriteTimeout,
		PongTimeout:     cfg.PongTimeout,
	})

	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: relay.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("signal relay starting", "address", cfg.Address, "version", buildString)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("signal relay stopped", "rooms", relay.Registry().RoomCount(),
		"anomalous_joins", relay.Registry().Anomalies())
}
