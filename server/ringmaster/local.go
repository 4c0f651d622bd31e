// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package ringmaster

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/mode"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/storage"
	"go.uber.org/zap"
)

const (
	eventRequestRun      = "EventRequestRun"
	eventRequestComplete = "EventRequestComplete"
	eventRequestFail     = "EventRequestFail"
)

var (
	requestEvents = fsm.Events{
		{Name: eventRequestRun, Src: []string{string(RequestIssued)}, Dst: string(RequestRunning)},
		{Name: eventRequestComplete, Src: []string{string(RequestIssued), string(RequestRunning)}, Dst: string(RequestComplete)},
		{Name: eventRequestFail, Src: []string{string(RequestIssued), string(RequestRunning)}, Dst: string(RequestFailed)},
	}
	requestCallbacks = fsm.Callbacks{
		eventRequestComplete: requestCompleteCallback,
	}
	stateEvents = map[RequestState]string{
		RequestRunning:  eventRequestRun,
		RequestComplete: eventRequestComplete,
		RequestFailed:   eventRequestFail,
	}
)

// requestCallbackRequest is the fsm callbacks param.
type requestCallbackRequest struct {
	ctx     context.Context
	storage storage.MetaStorage
	dhtName string
	request storage.ConvergenceRequest
}

// requestCompleteCallback makes the target of the request the current ring,
// provided it is still the target of the pointer.
func requestCompleteCallback(event *fsm.Event) {
	req := event.Args[0].(*requestCallbackRequest)
	_, err := req.storage.UpdateCurTarget(req.ctx, req.dhtName, func(p *storage.CurTargetPointer) error {
		if p.Target != req.request.Target {
			return ErrStaleRequest.WithCausef("request:%s, request target:%s, pointer target:%s", req.request.ID, req.request.Target, p.Target)
		}
		p.Current = req.request.Target
		return nil
	})
	if err != nil {
		event.Cancel(errors.WithMessagef(err, "converge to target:%s", req.request.Target))
	}
}

type LocalOptions struct {
	// DriveInterval advances the in-flight request one step per interval when
	// positive, unless the mode is Manual.
	DriveInterval time.Duration
	Now           func() time.Time
}

// Local is an in-process ring master keeping its requests in the meta storage.
// It does not move any data: requests are advanced by Advance or by Run.
type Local struct {
	lock    sync.Mutex
	storage storage.MetaStorage
	dhtName string
	opts    LocalOptions
}

func NewLocal(storage storage.MetaStorage, dhtName string, opts LocalOptions) *Local {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Local{
		storage: storage,
		dhtName: dhtName,
		opts:    opts,
	}
}

func (l *Local) GetDHTConfiguration(ctx context.Context) (storage.DHTConfiguration, error) {
	return l.storage.GetDHTConfiguration(ctx, l.dhtName, storage.LatestVersion)
}

func (l *Local) GetMode(ctx context.Context) (mode.Mode, error) {
	name, ok, err := l.storage.GetMode(ctx, l.dhtName)
	if err != nil {
		return "", err
	}
	if !ok {
		return mode.Default, nil
	}
	return mode.Parse(name)
}

func (l *Local) SetMode(ctx context.Context, m mode.Mode) error {
	if !m.Valid() {
		return mode.ErrInvalidMode.WithCausef("mode:%q", m)
	}
	return l.storage.PutMode(ctx, l.dhtName, m.String())
}

// SetTarget records a new request. Requests still in flight are failed as superseded.
func (l *Local) SetTarget(ctx context.Context, target ring.Identity) (uuid.UUID, error) {
	if err := target.Validate(); err != nil {
		return uuid.Nil, err
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	m, err := l.GetMode(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if !m.AcceptsTarget() {
		return uuid.Nil, ErrTargetRejected.WithCausef("mode:%s, target:%s", m, target)
	}

	return l.issue(ctx, target)
}

// issue records a request for target, failing the one in flight as superseded.
func (l *Local) issue(ctx context.Context, target ring.Identity) (uuid.UUID, error) {
	id := uuid.New()
	inFlight, ok, err := l.inFlightRequest(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if ok {
		if _, err := l.advance(ctx, inFlight, RequestFailed, "superseded by "+id.String()); err != nil {
			return uuid.Nil, err
		}
		log.Info("supersede convergence request", zap.String("id", inFlight.ID), zap.String("by", id.String()))
	}

	now := l.opts.Now()
	request := storage.ConvergenceRequest{
		ID:        id.String(),
		Target:    target,
		State:     string(RequestIssued),
		IssuedAt:  now,
		UpdatedAt: now,
	}
	if _, err := l.storage.PutConvergenceRequest(ctx, l.dhtName, request); err != nil {
		return uuid.Nil, err
	}
	if err := l.storage.PutInFlightRequest(ctx, l.dhtName, request.ID); err != nil {
		return uuid.Nil, err
	}
	log.Info("issue convergence request", zap.String("id", request.ID), zap.String("target", target.String()))
	return id, nil
}

func (l *Local) GetStatus(ctx context.Context, id uuid.UUID) (RequestStatus, bool, error) {
	request, err := l.storage.GetConvergenceRequest(ctx, l.dhtName, id.String())
	if err != nil {
		if errors.Is(err, storage.ErrNodeNotFound) {
			return RequestStatus{}, false, nil
		}
		return RequestStatus{}, false, err
	}
	status, err := toStatus(request)
	if err != nil {
		return RequestStatus{}, false, err
	}
	return status, true, nil
}

// GetCurrentConvergenceID returns the request in flight. At most one request
// is in flight, issuing a new one supersedes it.
func (l *Local) GetCurrentConvergenceID(ctx context.Context) (uuid.UUID, bool, error) {
	request, ok, err := l.inFlightRequest(ctx)
	if err != nil || !ok {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(request.ID)
	if err != nil {
		return uuid.Nil, false, ErrInvalidRequestID.WithCausef("id:%s, err:%v", request.ID, err)
	}
	return id, true, nil
}

// inFlightRequest follows the in-flight index, a terminal or missing request counts as none.
func (l *Local) inFlightRequest(ctx context.Context) (storage.ConvergenceRequest, bool, error) {
	id, ok, err := l.storage.GetInFlightRequest(ctx, l.dhtName)
	if err != nil || !ok {
		return storage.ConvergenceRequest{}, false, err
	}
	request, err := l.storage.GetConvergenceRequest(ctx, l.dhtName, id)
	if err != nil {
		if errors.Is(err, storage.ErrNodeNotFound) {
			return storage.ConvergenceRequest{}, false, nil
		}
		return storage.ConvergenceRequest{}, false, err
	}
	state, err := ParseRequestState(request.State)
	if err != nil || state.Terminal() {
		return storage.ConvergenceRequest{}, false, nil
	}
	return request, true, nil
}

// Advance moves the request to state. Completing a request makes its target
// the current ring of the DHT instance.
func (l *Local) Advance(ctx context.Context, id uuid.UUID, state RequestState, message string) (RequestStatus, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	request, err := l.storage.GetConvergenceRequest(ctx, l.dhtName, id.String())
	if err != nil {
		if errors.Is(err, storage.ErrNodeNotFound) {
			return RequestStatus{}, ErrUnknownRequest.WithCausef("id:%s", id)
		}
		return RequestStatus{}, err
	}
	request, err = l.advance(ctx, request, state, message)
	if err != nil {
		return RequestStatus{}, err
	}
	return toStatus(request)
}

func (l *Local) advance(ctx context.Context, request storage.ConvergenceRequest, state RequestState, message string) (storage.ConvergenceRequest, error) {
	event, ok := stateEvents[state]
	if !ok {
		return storage.ConvergenceRequest{}, ErrInvalidTransition.WithCausef("id:%s, to:%s", request.ID, state)
	}

	requestFsm := fsm.NewFSM(request.State, requestEvents, requestCallbacks)
	callbackRequest := &requestCallbackRequest{
		ctx:     ctx,
		storage: l.storage,
		dhtName: l.dhtName,
		request: request,
	}
	if err := requestFsm.Event(event, callbackRequest); err != nil {
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			return storage.ConvergenceRequest{}, ErrInvalidTransition.WithCausef("id:%s, from:%s, to:%s", request.ID, request.State, state)
		}
		if errors.Is(err, ErrStaleRequest) {
			return l.failStale(ctx, request, err)
		}
		return storage.ConvergenceRequest{}, errors.WithMessagef(err, "advance request:%s", request.ID)
	}

	request.State = requestFsm.Current()
	request.Message = message
	request.UpdatedAt = l.opts.Now()
	request, err := l.storage.PutConvergenceRequest(ctx, l.dhtName, request)
	if err != nil {
		return storage.ConvergenceRequest{}, err
	}
	if RequestState(request.State).Terminal() {
		if err := l.clearInFlight(ctx, request.ID); err != nil {
			return storage.ConvergenceRequest{}, err
		}
	}
	log.Info("advance convergence request", zap.String("id", request.ID), zap.String("state", request.State))
	return request, nil
}

func (l *Local) clearInFlight(ctx context.Context, id string) error {
	inFlight, ok, err := l.storage.GetInFlightRequest(ctx, l.dhtName)
	if err != nil || !ok || inFlight != id {
		return err
	}
	return l.storage.PutInFlightRequest(ctx, l.dhtName, "")
}

// failStale fails a request whose target was replaced on the pointer before it
// completed, and issues a request for the pointer target instead.
func (l *Local) failStale(ctx context.Context, request storage.ConvergenceRequest, cause error) (storage.ConvergenceRequest, error) {
	failed, err := l.advance(ctx, request, RequestFailed, "stale: "+cause.Error())
	if err != nil {
		return storage.ConvergenceRequest{}, err
	}
	log.Warn("fail stale convergence request", zap.String("id", request.ID), zap.Error(cause))

	pointer, err := l.storage.GetCurTarget(ctx, l.dhtName)
	if err != nil {
		return storage.ConvergenceRequest{}, err
	}
	if pointer.Target == pointer.Current {
		return failed, nil
	}
	m, err := l.GetMode(ctx)
	if err != nil {
		return storage.ConvergenceRequest{}, err
	}
	if !m.AcceptsTarget() {
		log.Info("pointer target left unissued", zap.String("mode", m.String()), zap.String("target", pointer.Target.String()))
		return failed, nil
	}
	id, err := l.issue(ctx, pointer.Target)
	if err != nil {
		return storage.ConvergenceRequest{}, err
	}
	log.Info("reissue convergence request for pointer target", zap.String("stale", request.ID),
		zap.String("id", id.String()), zap.String("target", pointer.Target.String()))
	return failed, nil
}

// Run drives the in-flight request to completion, one step per DriveInterval,
// until ctx is done.
func (l *Local) Run(ctx context.Context) error {
	if l.opts.DriveInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(l.opts.DriveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.step(ctx); err != nil {
				log.Warn("fail to drive convergence request", zap.Error(err))
			}
		}
	}
}

func (l *Local) step(ctx context.Context) error {
	m, err := l.GetMode(ctx)
	if err != nil {
		return err
	}
	if m == mode.Manual {
		return nil
	}
	id, ok, err := l.GetCurrentConvergenceID(ctx)
	if err != nil || !ok {
		return err
	}
	status, ok, err := l.GetStatus(ctx, id)
	if err != nil || !ok {
		return err
	}

	next := RequestRunning
	if status.State == RequestRunning {
		next = RequestComplete
	}
	_, err = l.Advance(ctx, id, next, "")
	return err
}

func toStatus(request storage.ConvergenceRequest) (RequestStatus, error) {
	id, err := uuid.Parse(request.ID)
	if err != nil {
		return RequestStatus{}, ErrInvalidRequestID.WithCausef("id:%s, err:%v", request.ID, err)
	}
	state, err := ParseRequestState(request.State)
	if err != nil {
		return RequestStatus{}, err
	}
	return RequestStatus{
		ID:        id,
		Target:    request.Target,
		State:     state,
		Message:   request.Message,
		IssuedAt:  request.IssuedAt,
		UpdatedAt: request.UpdatedAt,
	}, nil
}
