package serving

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"busdelay/ml"
	"go.uber.org/zap"
)

type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// Phases lists every phase, in lifecycle order.
var Phases = []string{string(PhaseLoading), string(PhaseReady), string(PhaseFailed)}

// State is a snapshot of the controller. Handle is set only when Ready;
// Detail and Err only when Failed.
type State struct {
	Phase  Phase
	Handle *ml.Handle
	Detail string
	Err    error
	Since  time.Time
}

type Loader func(path string) (*ml.Handle, error)

// Controller owns the model lifecycle: one background load, then a terminal
// Ready or Failed state for the rest of the process.
type Controller struct {
	load   Loader
	logger *zap.Logger

	mu        sync.RWMutex
	state     State
	observers []func(State)

	start sync.Once
	done  chan struct{}
}

func NewController(load Loader, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		load:   load,
		logger: logger.With(zap.String("component", "readiness")),
		state:  State{Phase: PhaseLoading, Since: time.Now()},
		done:   make(chan struct{}),
	}
}

// StartLoading begins loading path in the background. Only the first call
// has any effect.
func (c *Controller) StartLoading(path string) {
	c.start.Do(func() {
		c.logger.Info("loading model", zap.String("path", path))
		go c.run(path)
	})
}

func (c *Controller) run(path string) {
	started := time.Now()
	handle, err := c.safeLoad(path)
	if err == nil && handle == nil {
		err = errors.New("loader returned no model")
	}

	next := State{Since: time.Now()}
	if err != nil {
		next.Phase = PhaseFailed
		next.Err = err
		next.Detail = err.Error()
		c.logger.Error("model load failed", zap.String("path", path), zap.Error(err), zap.Duration("elapsed", time.Since(started)))
	} else {
		next.Phase = PhaseReady
		next.Handle = handle
		c.logger.Info("model ready",
			zap.String("path", path),
			zap.String("variant", string(handle.Variant())),
			zap.Strings("features", handle.FeatureNames()),
			zap.Duration("elapsed", time.Since(started)))
	}
	c.transition(next)
}

func (c *Controller) safeLoad(path string) (handle *ml.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("model loader panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			handle, err = nil, fmt.Errorf("model loader panicked: %v", r)
		}
	}()
	return c.load(path)
}

func (c *Controller) transition(next State) {
	c.mu.Lock()
	if c.state.Phase != PhaseLoading {
		c.mu.Unlock()
		return
	}
	c.state = next
	observers := append([]func(State){}, c.observers...)
	c.mu.Unlock()

	close(c.done)
	for _, fn := range observers {
		fn(next)
	}
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Done is closed once the controller reaches Ready or Failed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Wait blocks until the load finishes or ctx is done.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	select {
	case <-c.done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// OnTransition registers fn to run after the terminal transition. If the
// controller is already terminal, fn runs immediately.
func (c *Controller) OnTransition(fn func(State)) {
	c.mu.Lock()
	state := c.state
	if state.Phase == PhaseLoading {
		c.observers = append(c.observers, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(state)
}
