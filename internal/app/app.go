// Package app wires a crabserver: logging, the websocket host, the server
// stream with its tick loop, recording and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/element"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/replay"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/stream"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/telemetry"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport/ws"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
	loggingSinks "github.com/herocrab/HeroCrabPlugin-sub000/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	File   config.Config
	Logger telemetry.Logger
	// Listener replaces File.Listen when set.
	Listener net.Listener
	// Console receives the console sink. Defaults to stdout.
	Console io.Writer
	// Ready is called with the listening address once the server accepts.
	Ready func(addr net.Addr)
}

// Run serves until ctx ends, then saves the running recording.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	file := cfg.File
	if err := file.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	router, err := NewLogRouter(file.Logging, cfg.Console)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := telemetry.NewCounters()
	host := ws.NewServer(ws.ServerConfig{
		MaxPacketSize:  file.Settings.MaxPacketSize,
		WriteTimeout:   file.Handshake.WriteTimeout,
		HandshakeRate:  rate.Limit(file.Handshake.PerSecond),
		HandshakeBurst: file.Handshake.Burst,
		Publisher:      router,
	})
	defer host.Close()

	world := NewWorld(stream.NewServer(host, stream.ServerConfig{
		Settings:  file.Settings,
		Publisher: router,
		Metrics:   metrics,
	}))

	var store *replay.Store
	if file.Record.Database != "" {
		store, err = replay.OpenStore(file.Record.Database)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	if file.Record.Enabled {
		if err := world.StartRecording(replay.NewRecorder(router), element.Group(file.Record.Group)); err != nil {
			return fmt.Errorf("start recording: %w", err)
		}
	}

	listener := cfg.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", file.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", file.Listen, err)
		}
	}
	handler := NewHTTPHandler(HTTPHandlerConfig{
		World:    world,
		Settings: file.Settings,
		Connect:  host,
		Store:    store,
		Metrics:  metrics,
		Router:   router,
		Logger:   logger,
	})
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- world.Run(loopCtx, file.Settings.TickRate) }()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(listener) }()

	logger.Printf("crabserver listening on %s", listener.Addr())
	if cfg.Ready != nil {
		cfg.Ready(listener.Addr())
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	case err := <-loopErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	stopLoop()

	if data := world.StopRecording(); data != nil && store != nil {
		rec, err := store.Save(shutdownCtx, file.Record.Name, data)
		if err != nil {
			return errors.Join(runErr, fmt.Errorf("save recording: %w", err))
		}
		logger.Printf("saved recording %s (%d entries, %.2fs)", rec.ID, rec.Entries, rec.Duration)
	}
	return runErr
}

// NewLogRouter builds the router and the sinks named in cfg.
func NewLogRouter(cfg logging.Config, console io.Writer) (*logging.Router, error) {
	if console == nil {
		console = os.Stdout
	}
	var sinks []logging.NamedSink
	if cfg.HasSink("console") {
		sinks = append(sinks, logging.NamedSink{Name: "console", Sink: loggingSinks.NewConsole(console)})
	}
	if cfg.HasSink("json") {
		f, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log: %w", err)
		}
		sinks = append(sinks, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSON(f, cfg.JSON.FlushInterval)})
	}
	if cfg.HasSink("memory") {
		sinks = append(sinks, logging.NamedSink{Name: "memory", Sink: loggingSinks.NewMemory()})
	}
	return logging.NewRouter(nil, cfg, sinks), nil
}
