package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const (
	shutdownTimeout     = 30 * time.Second
	healthCheckInterval = 60 * time.Second
)

// Daemon wires the long-lived components together: dependency-ordered init,
// registration-ordered start, reverse-ordered stop on signal.
type Daemon struct {
	components    []Component
	shutdownOrder []string
	health        HealthStatus
	mu            sync.RWMutex
	healthDone    chan struct{}
}

func New() *Daemon {
	return &Daemon{
		health:     StatusStarting,
		healthDone: make(chan struct{}),
	}
}

func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, comp)
	d.shutdownOrder = append([]string{comp.Name()}, d.shutdownOrder...)
	slog.Info("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

// Run initializes and starts every component, then blocks until the context
// is cancelled or an interrupt arrives, shutting down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.initializeComponents(ctx); err != nil {
		d.rollback(ctx)
		return fmt.Errorf("component initialization failed: %w", err)
	}
	if err := d.startComponents(ctx); err != nil {
		d.gracefulShutdown(context.Background())
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("Daemon is running", "components", len(d.components))

	go d.healthMonitor(ctx)

	<-ctx.Done()

	slog.Info("Shutting down", "reason", ctx.Err())
	d.setHealth(StatusStopping)
	close(d.healthDone)
	return d.gracefulShutdown(context.Background())
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

// ComponentHealth polls every component's own health check.
func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	d.mu.RLock()
	components := make([]Component, len(d.components))
	copy(components, d.components)
	d.mu.RUnlock()

	result := make(map[string]*ComponentHealth)
	for _, comp := range components {
		health, err := comp.Health(context.Background())
		if health == nil {
			health = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	if err := d.validateDependencies(); err != nil {
		return err
	}
	order, err := d.resolveInitOrder()
	if err != nil {
		return err
	}

	for _, name := range order {
		comp := d.componentByName(name)
		if comp == nil {
			continue
		}
		if err := comp.Init(ctx); err != nil {
			return fmt.Errorf("component %s init failed: %w", name, err)
		}
		slog.Info("Component initialized", "component", name)
	}
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	for _, comp := range d.components {
		if err := comp.Start(ctx); err != nil {
			return fmt.Errorf("component %s startup failed: %w", comp.Name(), err)
		}
		slog.Info("Component started", "component", comp.Name())
	}
	return nil
}

func (d *Daemon) gracefulShutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.stopComponents(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout after %v", shutdownTimeout)
	}
}

func (d *Daemon) stopComponents(ctx context.Context) {
	for _, name := range d.shutdownOrder {
		comp := d.componentByName(name)
		if comp == nil {
			continue
		}
		if err := comp.Stop(ctx); err != nil {
			slog.Error("Component stop failed", "component", name, "error", err)
		} else {
			slog.Info("Component stopped", "component", name)
		}
	}
	d.setHealth(StatusStopped)
}

func (d *Daemon) rollback(ctx context.Context) {
	slog.Warn("Rolling back initialized components...")
	for i := len(d.components) - 1; i >= 0; i-- {
		if err := d.components[i].Stop(ctx); err != nil {
			slog.Error("Rollback failed", "component", d.components[i].Name(), "error", err)
		}
	}
	d.setHealth(StatusStopped)
}

func (d *Daemon) componentByName(name string) Component {
	for _, comp := range d.components {
		if comp.Name() == name {
			return comp
		}
	}
	return nil
}

func (d *Daemon) healthMonitor(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.healthDone:
			return
		case <-ticker.C:
			unhealthy := 0
			for name, health := range d.ComponentHealth() {
				if !health.Healthy {
					unhealthy++
					slog.Warn("Component unhealthy", "component", name, "error", health.Error)
				}
			}
			if unhealthy == 0 {
				slog.Debug("All components healthy", "count", len(d.components))
			}
		}
	}
}

func (d *Daemon) validateDependencies() error {
	registered := make(map[string]bool)
	for _, comp := range d.components {
		registered[comp.Name()] = true
	}
	for _, comp := range d.components {
		for _, dep := range comp.Dependencies() {
			if !registered[dep] {
				return fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), dep)
			}
		}
	}
	return nil
}

func (d *Daemon) resolveInitOrder() ([]string, error) {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		if inStack[name] {
			return fmt.Errorf("circular dependency detected involving %s", name)
		}
		if visited[name] {
			return nil
		}
		comp := d.componentByName(name)
		if comp == nil {
			return fmt.Errorf("component %s not found", name)
		}

		inStack[name] = true
		for _, dep := range comp.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		inStack[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, comp := range d.components {
		if err := visit(comp.Name()); err != nil {
			return nil, err
		}
	}
	return order, nil
}
