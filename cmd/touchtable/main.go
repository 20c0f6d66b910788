package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayusman/touchtable/internal/app"
	"github.com/ayusman/touchtable/internal/capture"
	"github.com/ayusman/touchtable/internal/config"
	"github.com/ayusman/touchtable/internal/display"
	"github.com/ayusman/touchtable/internal/logging"
	"github.com/ayusman/touchtable/internal/server"
	"github.com/ayusman/touchtable/internal/store"
	"github.com/ayusman/touchtable/internal/tray"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New("touchtable", cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatalw("touchtable failed", "error", err)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) (err error) {
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	// Use the second display full screen when there is one, otherwise the
	// canvas is only reachable as a stream.
	canvas := display.NewStream(cfg.Render.JPEGQuality)
	var surface display.Surface = canvas
	if bounds, ok := display.Secondary(); ok {
		cfg.Render.DisplayWidth, cfg.Render.DisplayHeight = bounds.Dx(), bounds.Dy()
		surface = display.Tee(display.NewWindow("touchtable", bounds), canvas)
		logger.Infow("using secondary display", "bounds", bounds)
	}
	preview := display.NewStream(cfg.Render.JPEGQuality)

	hub := server.NewTouchHub(logger.Named("ws"))
	defer hub.Close()

	table, err := app.New(app.Config{
		Settings: cfg,
		Camera:   capture.NewCamera(cfg.Camera.DeviceID, cfg.Camera.Width, cfg.Camera.Height),
		Surface:  surface,
		Preview:  preview,
		Store:    st,
		Logger:   logger.Named("app"),
	})
	if err != nil {
		return err
	}
	table.Session().OnDraw(hub.Publish)

	if err := table.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() { err = multierr.Append(err, table.Stop()) }()

	srv := server.New(server.Config{
		Store:         st,
		ActiveSession: table.SessionID,
		Status:        func() any { return table.Status() },
		Canvas:        canvas,
		Preview:       preview,
		Touches:       hub,
		Logger:        logger.Named("http"),
	})
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe(cfg.Server.Addr)
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = multierr.Append(err, srv.Shutdown(ctx))
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Tray.Enabled {
		return wait(ctx, table, srvErr)
	}

	t := tray.New()
	t.OnOpen(func() {
		if err := tray.OpenURL(viewerURL(cfg.Server.Addr)); err != nil {
			logger.Warnw("open canvas", "error", err)
		}
	})
	t.OnQuit(stop)

	errc := make(chan error, 1)
	go func() {
		errc <- watch(ctx, table, srvErr, t)
		t.Quit()
	}()
	// systray needs the main goroutine.
	t.Run()
	stop()
	return <-errc
}

// wait blocks until a signal arrives, the table fails or the server stops.
func wait(ctx context.Context, table *app.App, srvErr <-chan error) error {
	select {
	case <-ctx.Done():
		return nil
	case <-table.Done():
		return table.Err()
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return errors.New("http server stopped")
	}
}

// watch is wait with a tray status refresh every second.
func watch(ctx context.Context, table *app.App, srvErr <-chan error, t *tray.Tray) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	done := make(chan error, 1)
	go func() { done <- wait(ctx, table, srvErr) }()

	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			st := table.Status()
			t.SetStatus(tray.Label(st.Status, st.BackgroundReady))
		}
	}
}

func viewerURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}
