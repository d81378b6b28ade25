// Package channels defines the Channel capability set: the minimum
// surface every channel adapter exposes, plus the optional capabilities a
// concrete adapter may additionally satisfy. Concrete adapters (WhatsApp,
// Slack, Telegram, terminal UI) are explicitly out of scope; this package
// only defines the interfaces the router and approval state machines
// consume uniformly.
//
// Each optional capability is its own interface rather than a
// hasattr-style runtime probe, and callers test interface membership with
// a plain type assertion.
package channels

import "context"

// Channel is the capability every adapter must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp", "slack").
	Name() string

	// Owns reports whether this channel routes the given canonical chat id.
	Owns(chatID string) bool

	// IsConnected reports whether the channel is ready to send.
	IsConnected() bool

	// SendMessage is fire-and-forget: transient send errors are logged,
	// not surfaced to the user.
	SendMessage(ctx context.Context, chatID, text string) error
}

// ReactionSender is the optional capability to render emoji reactions on a
// message (e.g. the "eyes"/"✗" magic reactions).
type ReactionSender interface {
	Channel
	SendReaction(ctx context.Context, chatID, messageID, emoji string) error
}

// TypingSetter is the optional capability to show a typing indicator.
type TypingSetter interface {
	Channel
	SetTyping(ctx context.Context, chatID string, typing bool) error
}

// MessageUpdater is the optional capability to edit a previously sent
// message in place, which enables streaming output updates.
type MessageUpdater interface {
	Channel
	UpdateMessage(ctx context.Context, chatID, messageID, text string) error
}

// AskUserSender is the optional capability required to enable the ask_user
// flow on a channel: render a question (with options) and return the
// platform-native id of the resulting message, if any.
type AskUserSender interface {
	Channel
	SendAskUser(ctx context.Context, chatID, requestID string, questions []QuestionOption) (messageID string, err error)
}

// QuestionOption is one ask_user question as rendered to a channel.
type QuestionOption struct {
	Text    string
	Options []string
}

// GroupCreator is the optional capability to provision a new group chat,
// used by the admin to set up scheduled-agent chats.
type GroupCreator interface {
	Channel
	CreateGroup(ctx context.Context, name string) (chatID string, err error)
}

// SupportsReactions reports whether ch implements ReactionSender.
func SupportsReactions(ch Channel) (ReactionSender, bool) {
	r, ok := ch.(ReactionSender)
	return r, ok
}

// SupportsTyping reports whether ch implements TypingSetter.
func SupportsTyping(ch Channel) (TypingSetter, bool) {
	t, ok := ch.(TypingSetter)
	return t, ok
}

// SupportsStreaming reports whether ch implements MessageUpdater.
func SupportsStreaming(ch Channel) (MessageUpdater, bool) {
	u, ok := ch.(MessageUpdater)
	return u, ok
}

// SupportsAskUser reports whether ch implements AskUserSender.
func SupportsAskUser(ch Channel) (AskUserSender, bool) {
	a, ok := ch.(AskUserSender)
	return a, ok
}

// SupportsGroupCreation reports whether ch implements GroupCreator.
func SupportsGroupCreation(ch Channel) (GroupCreator, bool) {
	g, ok := ch.(GroupCreator)
	return g, ok
}
