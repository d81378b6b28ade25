// Package router implements the message router / event bus: the
// inbound pipeline from a channel adapter to the per-workspace queue,
// magic-command detection, the outbound fan-out back to channels, and
// host-originated notifications. It is the single place that ties the
// store, the channel registry, the per-workspace queue, and the worker
// session manager together — the "small explicit Host value" the Design
// Notes call for in place of process-wide singletons.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthost/internal/channels"
	"github.com/nextlevelbuilder/agenthost/internal/config"
	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/queue"
	"github.com/nextlevelbuilder/agenthost/internal/store"
)

// Inbound is one normalized message from a channel adapter, the router's
// entry point.
type Inbound struct {
	Channel    string
	ChatID     string // platform-native chat id, resolved to canonical below
	SenderID   string
	SenderName string
	Content    string
	Metadata   map[string]string
}

// JIDAliasResolver resolves a platform-specific chat id to the canonical
// chat id a workspace is registered under: a channel may address the
// same logical workspace under a platform-specific id.
type JIDAliasResolver interface {
	Canonicalize(channel, platformChatID string) string
}

// identityResolver maps the canonical chat id to a registered workspace.
type WorkspaceResolver interface {
	ResolveByChatID(ctx context.Context, chatID string) (*domain.Workspace, error)
}

// Router wires the inbound and outbound message pipelines.
type Router struct {
	stores   *store.Stores
	channels *channels.Manager
	queue    *queue.Queue
	aliases  JIDAliasResolver
	workspaces WorkspaceResolver
	commands CommandMatcher
	limiter  *channels.OutboundLimiter
	handlers Handlers

	agentName string
}

// New constructs a Router. queue must be constructed with a Deliverer that
// ultimately calls back into this Router's Deliver/InterruptWorker methods
// (the two packages are mutually dependent by design: the queue serializes
// turns, the router knows how to run one).
func New(stores *store.Stores, chMgr *channels.Manager, q *queue.Queue, aliases JIDAliasResolver, workspaces WorkspaceResolver, cmds config.CommandsConfig, agentName string) *Router {
	return &Router{
		stores:     stores,
		channels:   chMgr,
		queue:      q,
		aliases:    aliases,
		workspaces: workspaces,
		commands:   NewCommandMatcher(cmds),
		limiter:    channels.NewOutboundLimiter(),
		agentName:  agentName,
	}
}

// HandleInbound runs the full inbound pipeline:
//  1. resolve the canonical chat id via the JID-alias table
//  2. store the message, idempotent on id
//  3. detect and dispatch magic commands, or enqueue on the workspace queue
func (r *Router) HandleInbound(ctx context.Context, in Inbound, triggerStripped string) error {
	canonicalChatID := in.ChatID
	if r.aliases != nil {
		canonicalChatID = r.aliases.Canonicalize(in.Channel, in.ChatID)
	}

	msg := domain.Message{
		ID:         uuid.NewString(),
		ChatID:     canonicalChatID,
		Sender:     in.SenderID,
		SenderName: in.SenderName,
		Content:    in.Content,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Direction:  domain.DirectionInbound,
		Metadata:   in.Metadata,
	}
	if _, err := r.stores.Messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("router: store inbound message: %w", err)
	}

	ws, err := r.workspaces.ResolveByChatID(ctx, canonicalChatID)
	if err != nil {
		return fmt.Errorf("router: resolve workspace for %s: %w", canonicalChatID, err)
	}
	if ws == nil {
		slog.Warn("router.no_workspace_for_chat", "chat_id", canonicalChatID)
		return nil
	}

	if cmd, matched := r.commands.Match(triggerStripped); matched {
		return r.dispatchMagicCommand(ctx, *ws, canonicalChatID, in, cmd)
	}

	r.queue.Enqueue(ctx, *ws, canonicalChatID, in.Content)
	return nil
}

// HandleReaction handles a reaction emoji on a message: "eyes" re-queues a
// message check, "✗" interrupts the active worker. onCheck is invoked for
// the eyes case;
// the router itself owns only the interrupt side effect.
func (r *Router) HandleReaction(ctx context.Context, workspaceFolder, emoji string, onCheck func()) error {
	switch emoji {
	case "✗":
		return r.queue.Interrupt(ctx, workspaceFolder)
	case "eyes", "👀":
		if onCheck != nil {
			onCheck()
		}
	}
	return nil
}

// BroadcastText implements the outbound pipeline: every worker text event
// is broadcast to all channels that own the canonical chat id, paced per
// channel, with bounded retry on transient failures.
func (r *Router) BroadcastText(ctx context.Context, chatID, text string, assistantPrefix bool) {
	ch, ok := r.channels.Resolve(chatID)
	if !ok {
		slog.Warn("router.no_channel_for_chat", "chat_id", chatID)
		return
	}
	if assistantPrefix && r.agentName != "" {
		text = "**" + r.agentName + "**: " + text
	}

	_ = r.limiter.Wait(ctx, ch.Name())
	err := channels.SendWithRetry(ctx, func() error {
		return ch.SendMessage(ctx, chatID, text)
	})
	if err != nil {
		slog.Warn("router.broadcast_failed", "channel", ch.Name(), "chat_id", chatID, "error", err)
	}

	r.persistOutbound(ctx, chatID, text, domain.DirectionOutbound)
}

// NotifyHost sends a host-originated notification (deploys, resets,
// interrupts, approval prompts) through the same bus, labelled distinctly
// and persisted so the user sees operational events inline.
func (r *Router) NotifyHost(ctx context.Context, chatID, text string) {
	ch, ok := r.channels.Resolve(chatID)
	if !ok {
		slog.Warn("router.no_channel_for_host_notice", "chat_id", chatID)
		return
	}
	err := channels.SendWithRetry(ctx, func() error {
		return ch.SendMessage(ctx, chatID, "🛈 "+text)
	})
	if err != nil {
		slog.Warn("router.host_notice_failed", "chat_id", chatID, "error", err)
	}
	r.persistOutbound(ctx, chatID, text, domain.DirectionHostNotice)
}

func (r *Router) persistOutbound(ctx context.Context, chatID, text string, dir domain.MessageDirection) {
	msg := domain.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Sender:    "host",
		Content:   text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Direction: dir,
	}
	if _, err := r.stores.Messages.Append(ctx, msg); err != nil {
		slog.Warn("router.persist_outbound_failed", "chat_id", chatID, "error", err)
	}
}

// StripTrigger removes the agent's configured trigger prefix from content,
// returning the remainder and whether the trigger matched at all.
func StripTrigger(content, trigger string) (stripped string, matched bool) {
	trimmed := strings.TrimSpace(content)
	if trigger == "" {
		return trimmed, true
	}
	lower := strings.ToLower(trimmed)
	lowerTrigger := strings.ToLower(trigger)
	if !strings.HasPrefix(lower, lowerTrigger) {
		return trimmed, false
	}
	return strings.TrimSpace(trimmed[len(trigger):]), true
}
