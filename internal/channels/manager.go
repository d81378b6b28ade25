package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager is the registry of connected channels and resolves which channel
// owns a given canonical chat id.
//
// When two channels both claim the same chat id, the first-registered
// channel wins and a warning names both, rather than panicking.
type Manager struct {
	mu       sync.RWMutex
	channels []Channel
	byName   map[string]Channel
}

// NewManager returns an empty channel registry.
func NewManager() *Manager {
	return &Manager{byName: make(map[string]Channel)}
}

// Register adds a channel. Registration order matters for Resolve's
// first-wins tie-break.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.byName[ch.Name()] = ch
}

// Get returns a registered channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.byName[name]
	return ch, ok
}

// All returns every registered channel, in registration order.
func (m *Manager) All() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, len(m.channels))
	copy(out, m.channels)
	return out
}

// Resolve finds the channel that owns chatID. If more than one channel
// claims it, the first-registered one wins and a warning is logged naming
// the conflict.
func (m *Manager) Resolve(chatID string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var winner Channel
	for _, ch := range m.channels {
		if ch.Owns(chatID) {
			if winner == nil {
				winner = ch
				continue
			}
			slog.Warn("channels.owns_conflict", "chat_id", chatID, "winner", winner.Name(), "loser", ch.Name())
		}
	}
	if winner == nil {
		return nil, false
	}
	return winner, true
}

// Broadcast sends text to every connected channel that owns chatID.
// Send errors are logged and do not abort the broadcast to other channels.
func (m *Manager) Broadcast(ctx context.Context, chatID, text string) {
	ch, ok := m.Resolve(chatID)
	if !ok {
		slog.Warn("channels.no_owner", "chat_id", chatID)
		return
	}
	if !ch.IsConnected() {
		slog.Warn("channels.not_connected", "channel", ch.Name(), "chat_id", chatID)
		return
	}
	if err := ch.SendMessage(ctx, chatID, text); err != nil {
		slog.Warn("channels.send_failed", "channel", ch.Name(), "chat_id", chatID, "error", err)
	}
}

// SendToNamed delivers text to a specific channel by name, bypassing
// Resolve. Used for host notices whose originating channel is already
// known.
func (m *Manager) SendToNamed(ctx context.Context, channelName, chatID, text string) error {
	ch, ok := m.Get(channelName)
	if !ok {
		return fmt.Errorf("channels: unknown channel %q", channelName)
	}
	return ch.SendMessage(ctx, chatID, text)
}
