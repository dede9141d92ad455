// Package bot is the facade the transport layer talks to.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/lunch-picker/internal/catalog"
	"github.com/ashureev/lunch-picker/internal/conversation"
	"github.com/ashureev/lunch-picker/internal/transcript"
)

// Dialogue handles inbound text and choice confirmations.
type Dialogue interface {
	Handle(ctx context.Context, userID, text string) conversation.Reply
	Confirm(ctx context.Context, userID, venueID string) conversation.Reply
}

// Syncer runs one catalog sync cycle.
type Syncer interface {
	RunOnce(ctx context.Context) (*catalog.Result, error)
}

// Notifier pushes a text message to a user outside of a reply.
type Notifier interface {
	PushText(ctx context.Context, to, text string) error
}

// Transcript receives every dialogue turn.
type Transcript interface {
	Log(ev transcript.Event)
}

// Notification announces venues discovered by a sync cycle.
type Notification struct {
	Text     string   `json:"text"`
	NewNames []string `json:"new_names"`
	Pushed   bool     `json:"pushed"`
}

const newVenuesHeader = "🎉 新增店家！"

// Bot wires the dialogue and the catalog sync to the outside world.
type Bot struct {
	dialogue Dialogue
	syncer   Syncer
	notifier Notifier
	adminID  string
	journal  Transcript
	logger   *slog.Logger
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets the bot logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) { b.logger = l }
}

// New creates a Bot. notifier may be nil, in which case notifications are
// returned but not pushed.
func New(dialogue Dialogue, syncer Syncer, notifier Notifier, adminID string, opts ...Option) *Bot {
	b := &Bot{
		dialogue: dialogue,
		syncer:   syncer,
		notifier: notifier,
		adminID:  adminID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetTranscript enables dialogue logging.
func (b *Bot) SetTranscript(t Transcript) {
	b.journal = t
}

// OnInboundMessage returns the reply for one inbound text message.
func (b *Bot) OnInboundMessage(ctx context.Context, userID, text string) conversation.Reply {
	b.record(userID, "text", text)
	reply := b.dialogue.Handle(ctx, userID, text)
	b.recordReply(userID, reply)
	return reply
}

// OnInboundChoiceConfirmation records the user's venue choice for today.
func (b *Bot) OnInboundChoiceConfirmation(ctx context.Context, userID, venueID string) conversation.Reply {
	b.record(userID, "choose", venueID)
	reply := b.dialogue.Confirm(ctx, userID, venueID)
	b.recordReply(userID, reply)
	return reply
}

func (b *Bot) record(userID, kind, text string) {
	if b.journal == nil {
		return
	}
	b.journal.Log(transcript.Event{UserID: userID, Direction: transcript.Inbound, Kind: kind, Text: text})
}

func (b *Bot) recordReply(userID string, reply conversation.Reply) {
	if b.journal == nil {
		return
	}
	ev := transcript.Event{UserID: userID, Direction: transcript.Outbound, Kind: reply.Kind.String(), Text: reply.Text}
	for _, v := range reply.Venues {
		ev.VenueIDs = append(ev.VenueIDs, v.ID)
	}
	b.journal.Log(ev)
}

// RunScheduledSync runs a sync cycle and, when venues were discovered,
// returns a notification and pushes it to the admin. A nil notification
// means nothing new. Push failures are logged and do not fail the cycle.
func (b *Bot) RunScheduledSync(ctx context.Context) (*Notification, error) {
	res, err := b.syncer.RunOnce(ctx)
	if err != nil {
		b.logger.Error("Scheduled sync failed", "error", err, "upstream", catalog.IsUpstreamFailure(err))
		return nil, fmt.Errorf("scheduled sync: %w", err)
	}
	if len(res.NewNames) == 0 {
		b.logger.Info("Scheduled sync found no new venues", "unique", res.Unique)
		return nil, nil
	}

	n := &Notification{
		Text:     newVenuesHeader + "\n" + strings.Join(res.NewNames, "\n"),
		NewNames: res.NewNames,
	}

	if b.notifier != nil && b.adminID != "" {
		if err := b.notifier.PushText(ctx, b.adminID, n.Text); err != nil {
			b.logger.Warn("Failed to push new-venue notification", "error", err)
		} else {
			n.Pushed = true
		}
	}

	b.logger.Info("Scheduled sync discovered venues", "count", len(res.NewNames), "pushed", n.Pushed)
	return n, nil
}
