package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CryptoPulse/pkg/config"
	xhttp "CryptoPulse/pkg/http"
	pkgkafka "CryptoPulse/pkg/kafka"
	applogger "CryptoPulse/pkg/logger"
	"CryptoPulse/pkg/queue"
)

// Component is a background service started before the HTTP server and
// stopped after it.
type Component struct {
	Name  string
	Start func() error
	Stop  func(ctx context.Context) error
}

// ConsumerComponent runs a Kafka consumer.
func ConsumerComponent(c *pkgkafka.Consumer) Component {
	return Component{Name: "kafka consumer", Start: c.Start, Stop: c.Stop}
}

// QueueComponent runs a Redis job queue.
func QueueComponent(q *queue.RedisQueue) Component {
	return Component{Name: "training queue", Start: q.Start, Stop: q.Stop}
}

type closer struct {
	name string
	fn   func() error
}

type httpServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer httpServer
	components []Component
	closers    []closer
}

// New creates a new App around the HTTP server.
func New(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, httpServer: srv}
}

func (a *App) AddComponent(c Component) { a.components = append(a.components, c) }

// AddCloser registers a resource released after every component stopped.
// Closers run in registration order.
func (a *App) AddCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	started := 0
	for _, c := range a.components {
		if err := c.Start(); err != nil {
			a.l.Error("component start failed", applogger.String("component", c.Name), applogger.Error(err))
			a.stopComponents(context.Background(), a.components[:started])
			a.close()
			return fmt.Errorf("start %s: %w", c.Name, err)
		}
		a.l.Info("component started", applogger.String("component", c.Name))
		started++
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		a.stopComponents(context.Background(), a.components)
		a.close()
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops the HTTP server first so no request reaches a stopped
// component, then components in reverse start order, then closers.
func (a *App) shutdown() error {
	timeout := 10 * time.Second
	if a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
		timeout = a.cfg.Server.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}
	a.stopComponents(ctx, a.components)
	a.close()
	a.l.Info("shutdown complete")
	return firstErr
}

func (a *App) stopComponents(ctx context.Context, comps []Component) {
	for i := len(comps) - 1; i >= 0; i-- {
		if err := comps[i].Stop(ctx); err != nil {
			a.l.Warn("component stop error", applogger.String("component", comps[i].Name), applogger.Error(err))
		}
	}
}

func (a *App) close() {
	// Flush aggregated logs while the producer is still open.
	a.l.RemoveCollector()
	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.l.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
}
