// Package server runs long-lived services such as the simulator gRPC listener
// and shuts them down in reverse start order on a signal or the first failure.
package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service represents a long-running component that can be started and stopped.
type Service interface {
	// Start blocks until the service stops or fails.
	Start() error
	// Stop makes a running Start return.
	Stop()
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() { f.StopFn() }

// Lifecycle owns an ordered set of services.
type Lifecycle struct {
	logger   *zap.Logger
	mu       sync.Mutex
	services []namedService
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Add registers a named service. Services start in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every service and blocks until ctx is cancelled, SIGINT or SIGTERM
// arrives, or a service's Start returns. Services are then stopped in reverse order
// and Run waits for every Start to return.
//
// Postcondition: Returns nil after a signal or cancellation, or the first service
// error joined with any later ones.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	type exit struct {
		name string
		err  error
	}
	exits := make(chan exit, len(services))
	for _, ns := range services {
		go func() {
			l.logger.Info("starting service", zap.String("service", ns.name))
			exits <- exit{name: ns.name, err: ns.service.Start()}
		}()
	}
	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	var errs []error
	pending := len(services)
	record := func(e exit) {
		pending--
		if e.err != nil {
			l.logger.Error("service failed", zap.String("service", e.name), zap.Error(e.err))
			errs = append(errs, fmt.Errorf("service %s: %w", e.name, e.err))
			return
		}
		l.logger.Info("service exited", zap.String("service", e.name))
	}

	if pending > 0 {
		select {
		case <-ctx.Done():
			l.logger.Info("shutting down", zap.NamedError("cause", context.Cause(ctx)))
		case e := <-exits:
			record(e)
		}
	}

	l.shutdown(services)
	for pending > 0 {
		record(<-exits)
	}

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return errors.Join(errs...)
}

func (l *Lifecycle) shutdown(services []namedService) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		ns.service.Stop()
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(shutdownStart)))
}
