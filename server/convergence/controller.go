// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package convergence

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/metrics"
	"github.com/ringmeta/ringmeta/server/mode"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/ringmaster"
	"github.com/ringmeta/ringmeta/server/storage"
	"go.uber.org/zap"
)

const (
	EventIssue           = "EventIssue"
	EventObserveComplete = "EventObserveComplete"
	EventObserveFailed   = "EventObserveFailed"
	EventSettle          = "EventSettle"

	StateIdle          = "idle"
	StateRequestIssued = "request_issued"
	StateComplete      = "complete"
	StateFailed        = "failed"
)

var (
	controllerStates = []string{StateIdle, StateRequestIssued, StateComplete, StateFailed}
	controllerEvents = fsm.Events{
		{Name: EventIssue, Src: []string{StateIdle, StateRequestIssued, StateComplete, StateFailed}, Dst: StateRequestIssued},
		{Name: EventObserveComplete, Src: []string{StateRequestIssued}, Dst: StateComplete},
		{Name: EventObserveFailed, Src: []string{StateRequestIssued}, Dst: StateFailed},
		{Name: EventSettle, Src: []string{StateComplete, StateFailed}, Dst: StateIdle},
	}
)

type Options struct {
	// RejectWhileConverging rejects a new target while the ring master
	// reports a request in flight, instead of superseding it.
	RejectWhileConverging bool
}

// Controller holds the current/target pointer of a DHT instance, hands new
// targets to the ring master and answers status queries by request id.
type Controller struct {
	lock     sync.Mutex
	fsm      *fsm.FSM
	storage  storage.MetaStorage
	delegate ringmaster.Delegate
	dhtName  string
	opts     Options

	// lastRequest is the last request issued through this controller.
	lastRequest uuid.UUID
}

func NewController(storage storage.MetaStorage, delegate ringmaster.Delegate, dhtName string, opts Options) *Controller {
	c := &Controller{
		storage:  storage,
		delegate: delegate,
		dhtName:  dhtName,
		opts:     opts,
	}
	c.fsm = fsm.NewFSM(
		StateIdle,
		controllerEvents,
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				metrics.SetControllerState(dhtName, e.Dst, controllerStates)
				log.Debug("convergence controller transition", zap.String("dht", dhtName),
					zap.String("event", e.Event), zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
	metrics.SetControllerState(dhtName, StateIdle, controllerStates)
	return c
}

// State is the state of the controller, for display.
func (c *Controller) State() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.fsm.Current()
}

// LastRequest returns the last request issued through this controller.
func (c *Controller) LastRequest() (uuid.UUID, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.lastRequest, c.lastRequest != uuid.Nil
}

// SetTargetString parses the canonical identity and sets it as target.
func (c *Controller) SetTargetString(ctx context.Context, target string) (uuid.UUID, error) {
	id, err := ring.ParseIdentity(target)
	if err != nil {
		metrics.RecordSetTarget(err)
		return uuid.Nil, err
	}
	return c.SetTarget(ctx, id)
}

// SetTarget points the target of the DHT instance at the ring and asks the
// ring master to converge to it. It does not wait for convergence.
// The current ring is left untouched.
func (c *Controller) SetTarget(ctx context.Context, target ring.Identity) (_ uuid.UUID, err error) {
	defer func() {
		metrics.RecordSetTarget(err)
	}()

	if err := target.Validate(); err != nil {
		return uuid.Nil, err
	}
	exists, err := c.storage.RingInstanceExists(ctx, target)
	if err != nil {
		return uuid.Nil, err
	}
	if !exists {
		return uuid.Nil, storage.ErrRingNotFound.WithCausef("target:%s", target)
	}

	if c.opts.RejectWhileConverging {
		inFlight, ok, err := c.delegate.GetCurrentConvergenceID(ctx)
		if err != nil {
			return uuid.Nil, err
		}
		if ok {
			return uuid.Nil, ErrConvergenceInProgress.WithCausef("request:%s, target:%s", inFlight, target)
		}
	}

	var previous ring.Identity
	pointer, err := c.storage.UpdateCurTarget(ctx, c.dhtName, func(p *storage.CurTargetPointer) error {
		previous = p.Target
		p.Target = target
		return nil
	})
	if err != nil {
		return uuid.Nil, errors.WithMessagef(err, "update target of dht:%s", c.dhtName)
	}

	id, err := c.delegate.SetTarget(ctx, target)
	if err != nil {
		c.restoreTarget(ctx, target, previous)
		return uuid.Nil, errors.WithMessagef(err, "delegate target:%s", target)
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.fsm.Event(EventIssue); err != nil && !isNoTransition(err) {
		return uuid.Nil, errors.WithMessage(err, "issue convergence request")
	}
	c.lastRequest = id
	log.Info("set target", zap.String("dht", c.dhtName), zap.String("target", target.String()),
		zap.String("current", pointer.Current.String()), zap.String("request", id.String()))
	return id, nil
}

// restoreTarget puts back the previous target after the ring master refused
// target, unless the target has been moved since.
func (c *Controller) restoreTarget(ctx context.Context, target, previous ring.Identity) {
	if previous == target {
		return
	}
	_, err := c.storage.UpdateCurTarget(context.WithoutCancel(ctx), c.dhtName, func(p *storage.CurTargetPointer) error {
		if p.Target != target {
			return errTargetMoved
		}
		p.Target = previous
		return nil
	})
	if err != nil {
		if errors.Is(err, errTargetMoved) {
			log.Info("target moved, keep it", zap.String("dht", c.dhtName), zap.String("refused", target.String()))
			return
		}
		log.Error("fail to restore target", zap.String("dht", c.dhtName), zap.String("refused", target.String()),
			zap.String("previous", previous.String()), zap.Error(err))
		return
	}
	log.Info("restore target", zap.String("dht", c.dhtName), zap.String("refused", target.String()), zap.String("target", previous.String()))
}

// GetStatus reads the status of the request through the ring master.
// A terminal status of the last issued request settles the controller.
func (c *Controller) GetStatus(ctx context.Context, id uuid.UUID) (_ ringmaster.RequestStatus, _ bool, err error) {
	defer func() {
		metrics.RecordGetStatus(err)
	}()

	status, ok, err := c.delegate.GetStatus(ctx, id)
	if err != nil {
		return ringmaster.RequestStatus{}, false, err
	}
	if ok && status.RequestComplete() {
		c.observeTerminal(status)
	}
	return status, ok, nil
}

func (c *Controller) observeTerminal(status ringmaster.RequestStatus) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if status.ID != c.lastRequest || c.fsm.Current() != StateRequestIssued {
		return
	}
	event := EventObserveComplete
	if !status.Succeeded() {
		event = EventObserveFailed
	}
	if err := c.fsm.Event(event); err != nil {
		log.Warn("fail to observe terminal status", zap.String("request", status.ID.String()), zap.Error(err))
		return
	}
	if err := c.fsm.Event(EventSettle); err != nil {
		log.Warn("fail to settle controller", zap.String("request", status.ID.String()), zap.Error(err))
	}
}

// GetCurrentConvergenceID returns the request the ring master is executing,
// whoever issued it.
func (c *Controller) GetCurrentConvergenceID(ctx context.Context) (uuid.UUID, bool, error) {
	return c.delegate.GetCurrentConvergenceID(ctx)
}

func (c *Controller) GetMode(ctx context.Context) (mode.Mode, error) {
	return c.delegate.GetMode(ctx)
}

func (c *Controller) SetMode(ctx context.Context, m mode.Mode) error {
	if !m.Valid() {
		return mode.ErrInvalidMode.WithCausef("mode:%q", m)
	}
	if err := c.delegate.SetMode(ctx, m); err != nil {
		return err
	}
	log.Info("set mode", zap.String("dht", c.dhtName), zap.String("mode", m.String()))
	return nil
}

// SetModeString parses the mode name and sets it.
func (c *Controller) SetModeString(ctx context.Context, name string) error {
	m, err := mode.Parse(name)
	if err != nil {
		return err
	}
	return c.SetMode(ctx, m)
}

func (c *Controller) GetDHTConfiguration(ctx context.Context) (storage.DHTConfiguration, error) {
	return c.delegate.GetDHTConfiguration(ctx)
}

// GetCurTarget reads the live current/target pointer.
func (c *Controller) GetCurTarget(ctx context.Context) (storage.CurTargetPointer, error) {
	return c.storage.GetCurTarget(ctx, c.dhtName)
}

func isNoTransition(err error) bool {
	var noTransition fsm.NoTransitionError
	return errors.As(err, &noTransition)
}
