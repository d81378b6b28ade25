package router

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/agenthost/internal/config"
	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

// CommandKind distinguishes the recognized magic commands.
type CommandKind string

const (
	CommandReset      CommandKind = "reset"
	CommandEndSession CommandKind = "end_session"
	CommandRedeploy   CommandKind = "redeploy"
	CommandApprove    CommandKind = "approve"
	CommandDeny       CommandKind = "deny"
	CommandPending    CommandKind = "pending"
)

// MagicCommand is a recognized magic command plus its argument, if any
// (the short id for approve/deny).
type MagicCommand struct {
	Kind CommandKind
	Arg  string
}

// CommandMatcher recognizes the stripped trigger prefix as one of the
// configurable single-/two-word magic commands, or the fixed approve/deny/
// pending verbs.
type CommandMatcher struct {
	reset      map[string]bool
	endSession map[string]bool
	redeploy   map[string]bool
}

// NewCommandMatcher builds a matcher from the configured word lists.
func NewCommandMatcher(cfg config.CommandsConfig) CommandMatcher {
	return CommandMatcher{
		reset:      toSet(cfg.ResetContext),
		endSession: toSet(cfg.EndSession),
		redeploy:   toSet(cfg.Redeploy),
	}
}

func toSet(words []string) map[string]bool {
	if len(words) == 0 {
		words = nil
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return m
}

// Match checks the stripped trigger text against every recognized magic
// command. Matching is case-insensitive and trims surrounding whitespace.
func (c CommandMatcher) Match(text string) (MagicCommand, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return MagicCommand{}, false
	}

	if lower == "pending" {
		return MagicCommand{Kind: CommandPending}, true
	}
	if arg, ok := matchVerb(lower, "approve"); ok {
		return MagicCommand{Kind: CommandApprove, Arg: arg}, true
	}
	if arg, ok := matchVerb(lower, "deny"); ok {
		return MagicCommand{Kind: CommandDeny, Arg: arg}, true
	}
	if c.reset[lower] {
		return MagicCommand{Kind: CommandReset}, true
	}
	if c.endSession[lower] {
		return MagicCommand{Kind: CommandEndSession}, true
	}
	if c.redeploy[lower] {
		return MagicCommand{Kind: CommandRedeploy}, true
	}
	return MagicCommand{}, false
}

func matchVerb(lower, verb string) (arg string, matched bool) {
	if !strings.HasPrefix(lower, verb) {
		return "", false
	}
	rest := strings.TrimSpace(lower[len(verb):])
	if rest == "" {
		return "", false
	}
	return rest, true
}

// Handlers performs the side effect of each magic command. Implemented by
// the composition root (cmd/run.go), which owns the worker session
// manager, the approval manager, and the deploy/lifecycle controller —
// packages the router does not import to avoid a dependency cycle.
type Handlers interface {
	Reset(ctx context.Context, ws domain.Workspace, chatID string) error
	EndSession(ctx context.Context, ws domain.Workspace, chatID string) error
	Redeploy(ctx context.Context, ws domain.Workspace, chatID string) error
	Approve(ctx context.Context, shortID string) (string, error) // returns a human-facing result line
	Deny(ctx context.Context, shortID string) (string, error)
	ListPending(ctx context.Context) (string, error)
}

// SetHandlers wires the magic-command side-effect handlers into the router.
func (r *Router) SetHandlers(h Handlers) { r.handlers = h }

func (r *Router) dispatchMagicCommand(ctx context.Context, ws domain.Workspace, chatID string, in Inbound, cmd MagicCommand) error {
	if r.handlers == nil {
		r.NotifyHost(ctx, chatID, "magic command received but no handler is wired: "+string(cmd.Kind))
		return nil
	}

	switch cmd.Kind {
	case CommandReset:
		if err := r.handlers.Reset(ctx, ws, chatID); err != nil {
			return err
		}
		r.NotifyHost(ctx, chatID, "session reset")
	case CommandEndSession:
		if err := r.handlers.EndSession(ctx, ws, chatID); err != nil {
			return err
		}
		r.NotifyHost(ctx, chatID, "session ended")
	case CommandRedeploy:
		if !ws.IsAdmin {
			r.NotifyHost(ctx, chatID, "redeploy is admin-only")
			return nil
		}
		if err := r.handlers.Redeploy(ctx, ws, chatID); err != nil {
			return err
		}
	case CommandApprove:
		line, err := r.handlers.Approve(ctx, cmd.Arg)
		if err != nil {
			r.NotifyHost(ctx, chatID, err.Error())
			return nil
		}
		r.NotifyHost(ctx, chatID, line)
	case CommandDeny:
		line, err := r.handlers.Deny(ctx, cmd.Arg)
		if err != nil {
			r.NotifyHost(ctx, chatID, err.Error())
			return nil
		}
		r.NotifyHost(ctx, chatID, line)
	case CommandPending:
		line, err := r.handlers.ListPending(ctx)
		if err != nil {
			return err
		}
		r.NotifyHost(ctx, chatID, line)
	}
	return nil
}
