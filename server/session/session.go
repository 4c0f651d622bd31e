// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package session

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/ringmeta/ringmeta/pkg/log"
	"github.com/ringmeta/ringmeta/server/convergence"
	"github.com/ringmeta/ringmeta/server/mode"
	"github.com/ringmeta/ringmeta/server/registry"
	"github.com/ringmeta/ringmeta/server/ring"
	"github.com/ringmeta/ringmeta/server/ringmaster"
	"github.com/ringmeta/ringmeta/server/storage"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDisplayLimit = 10
	DefaultPollInterval = time.Second
)

// Controller is what an operator session drives.
type Controller interface {
	SetTarget(ctx context.Context, target ring.Identity) (uuid.UUID, error)
	GetStatus(ctx context.Context, id uuid.UUID) (ringmaster.RequestStatus, bool, error)
	GetCurrentConvergenceID(ctx context.Context) (uuid.UUID, bool, error)
	GetMode(ctx context.Context) (mode.Mode, error)
	SetMode(ctx context.Context, m mode.Mode) error
	GetDHTConfiguration(ctx context.Context) (storage.DHTConfiguration, error)
	GetCurTarget(ctx context.Context) (storage.CurTargetPointer, error)
}

// Lister lists the versions of a ring.
type Lister interface {
	ListVersions(ctx context.Context, ringName string) (registry.Listing, error)
}

type Config struct {
	DisplayLimit int
	PollInterval time.Duration
}

// Session is the state of one operator: the last ring listing, the last
// request it issued and its verbosity. Nothing is shared between sessions.
type Session struct {
	controller Controller
	lister     Lister
	out        io.Writer
	cfg        Config

	listing     registry.Listing
	lastRequest uuid.UUID
	verbose     bool
	quit        bool
}

func New(controller Controller, lister Lister, out io.Writer, cfg Config) *Session {
	if cfg.DisplayLimit <= 0 {
		cfg.DisplayLimit = DefaultDisplayLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Session{
		controller: controller,
		lister:     lister,
		out:        out,
		cfg:        cfg,
	}
}

func (s *Session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// Verbose tells whether the elapsed time is printed after every command.
func (s *Session) Verbose() bool {
	return s.verbose
}

// Done tells whether the operator asked to quit.
func (s *Session) Done() bool {
	return s.quit
}

// LastRequest is the last request issued in this session.
func (s *Session) LastRequest() (uuid.UUID, bool) {
	return s.lastRequest, s.lastRequest != uuid.Nil
}

// Listing is the last ring listing fetched in this session.
func (s *Session) Listing() registry.Listing {
	return s.listing
}

func (s *Session) DisplayConfig(ctx context.Context) error {
	config, err := s.controller.GetDHTConfiguration(ctx)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(config)
	if err != nil {
		return errors.WithMessage(err, "marshal dht configuration")
	}
	s.printf("%s", out)
	return nil
}

// DisplayRings lists the versions of the ring of the dht, the most recent
// limit ones and the labelled ones. The listing is kept for Target by index.
func (s *Session) DisplayRings(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = s.cfg.DisplayLimit
	}
	config, err := s.controller.GetDHTConfiguration(ctx)
	if err != nil {
		return err
	}
	listing, err := s.lister.ListVersions(ctx, config.RingName)
	if err != nil {
		return err
	}
	s.listing = listing

	for _, entry := range listing.Window(limit) {
		r := entry.Record
		s.printf("%2d)\t%s\t%s\t%s\n", entry.Index, r.Identity, r.CreationTime.Format(time.RFC3339), r.Label())
	}
	return nil
}

func (s *Session) DisplayCurrent(ctx context.Context) error {
	pointer, err := s.controller.GetCurTarget(ctx)
	if err != nil {
		return err
	}
	s.printf("CurrentRing: %s\n", pointer.Current)
	return nil
}

func (s *Session) DisplayTarget(ctx context.Context) error {
	pointer, err := s.controller.GetCurTarget(ctx)
	if err != nil {
		return err
	}
	s.printf("TargetRing: %s\n", pointer.Target)
	return nil
}

func (s *Session) DisplayMode(ctx context.Context) error {
	m, err := s.controller.GetMode(ctx)
	if err != nil {
		return err
	}
	s.printf("%s\n", m)
	return nil
}

func (s *Session) SetMode(ctx context.Context, name string) error {
	m, err := mode.Parse(name)
	if err != nil {
		return err
	}
	return s.controller.SetMode(ctx, m)
}

// ResolveTarget resolves an index into the last listing, or parses a ring
// identity. A bad index fails without reading the store.
func (s *Session) ResolveTarget(arg string) (ring.Identity, error) {
	if index, err := strconv.Atoi(arg); err == nil {
		return s.listing.Resolve(index)
	}
	return ring.ParseIdentity(arg)
}

// Target sets the target and waits for the convergence to complete.
func (s *Session) Target(ctx context.Context, arg string) error {
	target, err := s.ResolveTarget(arg)
	if err != nil {
		return err
	}

	s.printf("Setting target: %s\n", target)
	id, err := s.controller.SetTarget(ctx, target)
	if err != nil {
		return err
	}
	s.lastRequest = id
	s.printf("%s\n", id)
	s.printf("Target set\n")
	return s.waitFor(ctx, id)
}

// TestTarget targets every ring in turn, printing how long each took.
func (s *Session) TestTarget(ctx context.Context, args ...string) error {
	for _, arg := range args {
		begin := time.Now()
		if err := s.Target(ctx, arg); err != nil {
			return err
		}
		s.printf("%s\t%s\n", arg, time.Since(begin))
	}
	return nil
}

// Wait waits for the request, or for the convergence in flight if id is empty.
func (s *Session) Wait(ctx context.Context, id string) error {
	if id != "" {
		requestID, err := uuid.Parse(id)
		if err != nil {
			return ErrInvalidRequestID.WithCausef("id:%s, err:%v", id, err)
		}
		return s.waitFor(ctx, requestID)
	}

	current, ok, err := s.controller.GetCurrentConvergenceID(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.printf("No current convergence\n")
		return nil
	}
	s.printf("Current convergence id: %s\n", current)
	return s.waitFor(ctx, current)
}

func (s *Session) waitFor(ctx context.Context, id uuid.UUID) error {
	s.printf("Waiting for %s\n", id)
	_, err := convergence.AwaitCompletion(ctx, s.controller, id, s.cfg.PollInterval, func(status ringmaster.RequestStatus) {
		s.printf("%s\n", status)
	})
	if err != nil {
		return err
	}
	s.printf("Complete\n")
	return nil
}

func (s *Session) ToggleVerbose() {
	s.verbose = !s.verbose
	s.printf("Verbose is now %t\n", s.verbose)
	log.Debug("toggle verbose", zap.Bool("verbose", s.verbose))
}

func (s *Session) Quit() {
	s.quit = true
}
