// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/limiter"
	"github.com/ringmeta/ringmeta/server/metrics"
	"github.com/ringmeta/ringmeta/server/mode"
	"github.com/ringmeta/ringmeta/server/registry"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/ringmaster"
	"github.com/ringmeta/ringmeta/server/storage"
	"go.uber.org/zap"
)

const (
	apiPrefix           = "/api/v1"
	defaultDisplayLimit = 10
	defaultWaitTimeout  = time.Minute
)

// Controller is the convergence controller served by the API.
type Controller interface {
	SetTargetString(ctx context.Context, target string) (uuid.UUID, error)
	GetStatus(ctx context.Context, id uuid.UUID) (ringmaster.RequestStatus, bool, error)
	GetCurrentConvergenceID(ctx context.Context) (uuid.UUID, bool, error)
	AwaitCompletion(ctx context.Context, id uuid.UUID, pollInterval time.Duration, onChange func(ringmaster.RequestStatus)) (ringmaster.RequestStatus, error)
	GetMode(ctx context.Context) (mode.Mode, error)
	SetModeString(ctx context.Context, name string) error
	GetDHTConfiguration(ctx context.Context) (storage.DHTConfiguration, error)
	GetCurTarget(ctx context.Context) (storage.CurTargetPointer, error)
}

type Lister interface {
	ListVersions(ctx context.Context, ringName string) (registry.Listing, error)
}

type API struct {
	controller   Controller
	lister       Lister
	flowLimiter  *limiter.FlowLimiter
	pollInterval time.Duration
	displayLimit int
}

func NewAPI(controller Controller, lister Lister, flowLimiter *limiter.FlowLimiter, pollInterval time.Duration, displayLimit int) *API {
	if displayLimit <= 0 {
		displayLimit = defaultDisplayLimit
	}
	return &API{
		controller:   controller,
		lister:       lister,
		flowLimiter:  flowLimiter,
		pollInterval: pollInterval,
		displayLimit: displayLimit,
	}
}

func (a *API) NewAPIRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix(apiPrefix).Subrouter()
	a.handle(api, "getConfig", "/config", http.MethodGet, a.getConfig)
	a.handle(api, "listRings", "/rings", http.MethodGet, a.listRings)
	a.handle(api, "getPointer", "/pointer", http.MethodGet, a.getPointer)
	a.handle(api, "getMode", "/mode", http.MethodGet, a.getMode)
	a.handle(api, "setMode", "/mode", http.MethodPut, a.setMode)
	a.handle(api, "setTarget", "/target", http.MethodPost, a.setTarget)
	a.handle(api, "getCurrentConvergence", "/convergence/current", http.MethodGet, a.getCurrentConvergence)
	a.handle(api, "getStatus", "/convergence/{id}", http.MethodGet, a.getStatus)
	a.handle(api, "getStatus", "/convergence/{id}/wait", http.MethodGet, a.waitForConvergence)
	return router
}

func (a *API) handle(router *mux.Router, name, path, method string, handler http.HandlerFunc) {
	router.Handle(path, a.instrument(name, handler)).Methods(method).Name(name)
}

// instrument logs every request, counts it and applies the flow limiter.
func (a *API) instrument(name string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		recorder := &statusRecorder{ResponseWriter: writer, code: http.StatusOK}
		defer func() {
			metrics.RecordHTTPRequest(name, recorder.code)
		}()

		log.Info("receive http request", zap.String("handlerName", name), zap.String("client host", request.RemoteAddr),
			zap.String("method", request.Method), zap.String("url", request.URL.String()))
		if a.flowLimiter != nil && !a.flowLimiter.Allow(name) {
			respondError(recorder, ErrFlowLimited.WithCausef("handler:%s", name))
			return
		}
		handler.ServeHTTP(recorder, request)
	})
}

func (a *API) getConfig(w http.ResponseWriter, req *http.Request) {
	config, err := a.controller.GetDHTConfiguration(req.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, config)
}

type RingEntry struct {
	Index        int           `json:"index"`
	Identity     ring.Identity `json:"identity"`
	Ring         string        `json:"ring"`
	CreationTime time.Time     `json:"creationTime"`
	Label        string        `json:"label,omitempty"`
}

func (a *API) listRings(w http.ResponseWriter, req *http.Request) {
	limit := a.displayLimit
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, ErrParseRequest.WithCausef("limit:%s", s))
			return
		}
		limit = n
	}

	ctx := req.Context()
	config, err := a.controller.GetDHTConfiguration(ctx)
	if err != nil {
		respondError(w, err)
		return
	}
	listing, err := a.lister.ListVersions(ctx, config.RingName)
	if err != nil {
		respondError(w, err)
		return
	}

	window := listing.Window(limit)
	entries := make([]RingEntry, 0, len(window))
	for _, e := range window {
		entries = append(entries, RingEntry{
			Index:        e.Index,
			Identity:     e.Record.Identity,
			Ring:         e.Record.Identity.String(),
			CreationTime: e.Record.CreationTime,
			Label:        e.Record.Label(),
		})
	}
	respond(w, entries)
}

type PointerResponse struct {
	Current string `json:"current"`
	Target  string `json:"target"`
	Version int64  `json:"version"`
}

func (a *API) getPointer(w http.ResponseWriter, req *http.Request) {
	pointer, err := a.controller.GetCurTarget(req.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, PointerResponse{Current: pointer.Current.String(), Target: pointer.Target.String(), Version: pointer.Version})
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

func (a *API) getMode(w http.ResponseWriter, req *http.Request) {
	m, err := a.controller.GetMode(req.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, ModeRequest{Mode: m.String()})
}

func (a *API) setMode(w http.ResponseWriter, req *http.Request) {
	var modeRequest ModeRequest
	if err := json.NewDecoder(req.Body).Decode(&modeRequest); err != nil {
		log.Error("decode request body failed", zap.Error(err))
		respondError(w, ErrParseRequest.WithCause(err))
		return
	}
	if err := a.controller.SetModeString(req.Context(), modeRequest.Mode); err != nil {
		respondError(w, err)
		return
	}
	respond(w, modeRequest)
}

type TargetRequest struct {
	// Target is a ring identity, "name,configVersion,instanceVersion".
	Target string `json:"target"`
}

type RequestIDResponse struct {
	ID     string `json:"id,omitempty"`
	Active bool   `json:"active"`
}

func (a *API) setTarget(w http.ResponseWriter, req *http.Request) {
	var targetRequest TargetRequest
	if err := json.NewDecoder(req.Body).Decode(&targetRequest); err != nil {
		log.Error("decode request body failed", zap.Error(err))
		respondError(w, ErrParseRequest.WithCause(err))
		return
	}
	id, err := a.controller.SetTargetString(req.Context(), targetRequest.Target)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, RequestIDResponse{ID: id.String(), Active: true})
}

func (a *API) getCurrentConvergence(w http.ResponseWriter, req *http.Request) {
	id, ok, err := a.controller.GetCurrentConvergenceID(req.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if !ok {
		respond(w, RequestIDResponse{Active: false})
		return
	}
	respond(w, RequestIDResponse{ID: id.String(), Active: true})
}

func parseRequestID(req *http.Request) (uuid.UUID, error) {
	s := mux.Vars(req)["id"]
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrParseRequest.WithCausef("request id:%s, err:%v", s, err)
	}
	return id, nil
}

func (a *API) getStatus(w http.ResponseWriter, req *http.Request) {
	id, err := parseRequestID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	status, ok, err := a.controller.GetStatus(req.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if !ok {
		respondError(w, ErrNotFound.WithCausef("request:%s", id))
		return
	}
	respond(w, status)
}

// waitForConvergence blocks until the request completes or timeoutSec
// elapses. Leaving early leaves nothing behind on the server.
func (a *API) waitForConvergence(w http.ResponseWriter, req *http.Request) {
	id, err := parseRequestID(req)
	if err != nil {
		respondError(w, err)
		return
	}
	timeout := defaultWaitTimeout
	if s := req.URL.Query().Get("timeoutSec"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, ErrParseRequest.WithCausef("timeoutSec:%s", s))
			return
		}
		timeout = time.Duration(n) * time.Second
	}

	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	status, err := a.controller.AwaitCompletion(ctx, id, a.pollInterval, nil)
	if err != nil {
		if ctx.Err() != nil {
			// Not complete yet, answer with the last status seen.
			respond(w, status)
			return
		}
		respondError(w, err)
		return
	}
	respond(w, status)
}
