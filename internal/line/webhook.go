// Package line adapts the LINE Messaging API webhook to the bot core.
package line

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/lunch-picker/internal/conversation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

const maxWebhookBody = 1 << 20

// Core is the bot surface the webhook drives.
type Core interface {
	OnInboundMessage(ctx context.Context, userID, text string) conversation.Reply
	OnInboundChoiceConfirmation(ctx context.Context, userID, venueID string) conversation.Reply
}

// Replier answers an event by reply token.
type Replier interface {
	ReplyMessage(ctx context.Context, replyToken string, messages ...messaging_api.MessageInterface) error
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithLogger sets the webhook logger.
func WithLogger(logger *slog.Logger) WebhookOption {
	return func(h *Webhook) {
		h.logger = logger
	}
}

// Webhook handles LINE callback requests.
type Webhook struct {
	core          Core
	replier       Replier
	channelSecret string
	logger        *slog.Logger
}

// NewWebhook creates a webhook handler.
func NewWebhook(core Core, replier Replier, channelSecret string, opts ...WebhookOption) *Webhook {
	h := &Webhook{core: core, replier: replier, channelSecret: channelSecret, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the callback endpoint.
func (h *Webhook) Routes(r chi.Router) {
	r.Post("/callback", h.Callback)
}

// Callback verifies the signature and answers every supported event with
// exactly one reply.
func (h *Webhook) Callback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)

	cb, err := webhook.ParseRequest(h.channelSecret, r)
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		h.logger.Warn("Rejected webhook with invalid signature", "request_id", middleware.GetReqID(r.Context()))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Warn("Rejected malformed webhook", "request_id", middleware.GetReqID(r.Context()), "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, ev := range cb.Events {
		h.dispatch(r.Context(), ev)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

func (h *Webhook) dispatch(ctx context.Context, ev webhook.EventInterface) {
	in, ok := classify(ev)
	if !ok {
		h.logger.Debug("Ignoring webhook event", "type", ev.GetType())
		return
	}
	if in.userID == "" || in.replyToken == "" {
		return
	}

	var reply conversation.Reply
	switch in.kind {
	case inboundChoice:
		reply = h.core.OnInboundChoiceConfirmation(ctx, in.userID, in.venueID)
	default:
		reply = h.core.OnInboundMessage(ctx, in.userID, in.text)
	}

	if err := h.replier.ReplyMessage(ctx, in.replyToken, Render(reply)); err != nil {
		h.logger.Error("Failed to send reply",
			"user_id", in.userID,
			"kind", reply.Kind.String(),
			"error", err)
	}
}
