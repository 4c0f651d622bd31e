// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package session

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const (
	Prompt     = "ska> "
	Terminator = ";"
)

type Action string

const (
	ActionMode               Action = "Mode"
	ActionTarget             Action = "Target"
	ActionTestTarget         Action = "TestTarget"
	ActionWaitForConvergence Action = "WaitForConvergence"
	ActionDisplay            Action = "Display"
	ActionHelp               Action = "Help"
	ActionToggleVerbose      Action = "ToggleVerbose"
	ActionQuit               Action = "Quit"
)

var actions = []Action{
	ActionMode, ActionTarget, ActionTestTarget, ActionWaitForConvergence,
	ActionDisplay, ActionHelp, ActionToggleVerbose, ActionQuit,
}

const (
	DisplayDHTConfig   = "DHTConfig"
	DisplayRings       = "Rings"
	DisplayMode        = "Mode"
	DisplayCurrentRing = "CurrentRing"
	DisplayTargetRing  = "TargetRing"
)

const helpMessage = `Mode [<mode>]                  display or set the mode
Target <index|name,cv,iv>      set the target ring and wait for convergence
TestTarget <target>...         target each ring in turn, timing each
WaitForConvergence [<id>]      wait for a request, the current one by default
Display DHTConfig|Rings [<limit>]|Mode|CurrentRing|TargetRing
Help                           display this message
ToggleVerbose                  toggle printing of elapsed time
Quit                           quit
`

func parseAction(s string) (Action, bool) {
	for _, a := range actions {
		if strings.EqualFold(string(a), s) {
			return a, true
		}
	}
	return "", false
}

// Exec runs one command line.
func (s *Session) Exec(ctx context.Context, line string) error {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil
	}
	action, ok := parseAction(tokens[0])
	if !ok {
		return ErrUnknownAction.WithCausef("action:%s", tokens[0])
	}

	begin := time.Now()
	err := s.exec(ctx, action, tokens[1:])
	if s.verbose && err == nil {
		s.printf("Elapsed:  %f\n", time.Since(begin).Seconds())
	}
	return err
}

func (s *Session) exec(ctx context.Context, action Action, args []string) error {
	switch action {
	case ActionMode:
		if len(args) == 0 {
			return s.DisplayMode(ctx)
		}
		return s.SetMode(ctx, args[0])
	case ActionTarget:
		if len(args) != 1 {
			return ErrInvalidArguments.WithCausef("target expects 1 argument, got %d", len(args))
		}
		return s.Target(ctx, args[0])
	case ActionTestTarget:
		return s.TestTarget(ctx, args...)
	case ActionWaitForConvergence:
		switch len(args) {
		case 0:
			return s.Wait(ctx, "")
		case 1:
			return s.Wait(ctx, args[0])
		}
		return ErrInvalidArguments.WithCausef("wait expects at most 1 argument, got %d", len(args))
	case ActionDisplay:
		return s.display(ctx, args)
	case ActionHelp:
		s.printf("%s", helpMessage)
	case ActionToggleVerbose:
		s.ToggleVerbose()
	case ActionQuit:
		s.Quit()
	}
	return nil
}

func (s *Session) display(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrInvalidArguments.WithCausef("display expects a target")
	}
	switch {
	case strings.EqualFold(args[0], DisplayDHTConfig):
		return s.DisplayConfig(ctx)
	case strings.EqualFold(args[0], DisplayRings):
		limit := 0
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return ErrInvalidArguments.WithCausef("display limit:%s", args[1])
			}
			limit = n
		}
		return s.DisplayRings(ctx, limit)
	case strings.EqualFold(args[0], DisplayMode):
		return s.DisplayMode(ctx)
	case strings.EqualFold(args[0], DisplayCurrentRing):
		return s.DisplayCurrent(ctx)
	case strings.EqualFold(args[0], DisplayTargetRing):
		return s.DisplayTarget(ctx)
	}
	return ErrInvalidArguments.WithCausef("display target:%s", args[0])
}

// RunScript runs the ;-separated commands in order, echoing each one, and
// stops at the first failure or at Quit.
func (s *Session) RunScript(ctx context.Context, script string) error {
	script = strings.Trim(strings.TrimSpace(script), `"'`)
	for _, command := range strings.Split(script, Terminator) {
		command = strings.TrimSpace(command)
		if command == "" {
			continue
		}
		s.printf("%s%s\n", Prompt, command)
		if err := s.Exec(ctx, command); err != nil {
			return err
		}
		if s.quit {
			return nil
		}
	}
	return nil
}
