// Package bot turns inbound chat webhooks into advising replies. It routes
// completion replies by category and links student and advisor threads once
// a conversation is escalated.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/xaenox/advising-bot/internal/advisor"
	"github.com/xaenox/advising-bot/internal/metrics"
	"github.com/xaenox/advising-bot/internal/models"
	"github.com/xaenox/advising-bot/internal/rocketchat"
	"github.com/xaenox/advising-bot/internal/storage"
	"go.uber.org/zap"
)

// Inbound is the outgoing-webhook body posted by the chat server
type Inbound struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"tmid"`
	ChannelID string `json:"channel_id"`
	Bot       bool   `json:"bot"`
}

// Outbound is returned to the chat server as the webhook response
type Outbound struct {
	Text        string                  `json:"text,omitempty"`
	ThreadID    string                  `json:"tmid,omitempty"`
	Attachments []rocketchat.Attachment `json:"attachments,omitempty"`
	Status      string                  `json:"status,omitempty"`
}

// Webhook outcomes that carry no reply text
const (
	StatusIgnored   = "ignored"
	StatusDuplicate = "duplicate"
	StatusForwarded = "forwarded"
)

// Messenger posts to the chat platform
type Messenger interface {
	Post(ctx context.Context, msg rocketchat.Message) (*rocketchat.Posted, error)
	Update(ctx context.Context, roomID, messageID, text string) error
}

// Responder produces categorized replies and escalation drafts
type Responder interface {
	Answer(ctx context.Context, profile *models.UserProfile, faqs []*models.FAQEntry, query string, lastK int) (advisor.Reply, error)
	Draft(ctx context.Context, profile *models.UserProfile, question string) (*advisor.Draft, error)
}

type Config struct {
	// LoadingMessage posts a placeholder to the student while the
	// completion service works and edits it once the reply is ready.
	LoadingMessage bool
	// PublicURL is where this service is reachable from the browser. When
	// set, requests for more student details link to the profile form.
	PublicURL string
}

type Bot struct {
	storage   storage.Storage
	responder Responder
	messenger Messenger
	linker    *Linker
	cfg       Config
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func New(storage storage.Storage, responder Responder, messenger Messenger, linker *Linker, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Bot {
	return &Bot{
		storage:   storage,
		responder: responder,
		messenger: messenger,
		linker:    linker,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// Respond handles one webhook and always returns a reply safe to show in
// chat. The error, if any, is returned alongside for logging and status.
func (b *Bot) Respond(ctx context.Context, in Inbound) (*Outbound, error) {
	out, err := b.HandleMessage(ctx, in)
	if err != nil {
		b.logger.Error("Failed to handle message",
			zap.Error(err),
			zap.String("user_id", in.UserID),
			zap.String("message_id", in.MessageID))
		return ErrorReply(err), err
	}
	return out, nil
}

func (b *Bot) HandleMessage(ctx context.Context, in Inbound) (*Outbound, error) {
	if in.Bot || strings.TrimSpace(in.Text) == "" {
		return &Outbound{Status: StatusIgnored}, nil
	}

	if in.MessageID != "" {
		claimed, err := b.storage.ClaimMessage(ctx, in.MessageID)
		if err != nil {
			return nil, transportErr("claim message", err)
		}
		if !claimed {
			b.logger.Info("Skipping redelivered message", zap.String("message_id", in.MessageID))
			return &Outbound{Status: StatusDuplicate}, nil
		}
	}

	// Threaded messages belong to a linked student/advisor conversation
	if in.ThreadID != "" {
		if err := b.linker.Forward(ctx, in.UserName, in.Text, in.ThreadID); err != nil {
			return nil, err
		}
		return &Outbound{Status: StatusForwarded}, nil
	}

	profile, err := b.loadProfile(ctx, in)
	if err != nil {
		return nil, err
	}

	lastK, err := b.storage.IncrementLastK(ctx, in.UserID)
	if err != nil {
		return nil, transportErr("increment last_k", err)
	}
	profile.LastK = lastK + 1

	if profile.PendingEscalation {
		out, handled, err := b.confirmEscalation(ctx, in, profile)
		if err != nil || handled {
			return out, err
		}
	}

	faq, err := b.storage.FindFAQByQuestion(ctx, in.Text)
	switch {
	case err == nil:
		b.metrics.RecordReply("faq")
		if len(faq.SuggestedQuestions) == 0 {
			return withHumanOption(faq.Answer), nil
		}
		return withSuggestions(faq.Answer, faq.SuggestedQuestions), nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, transportErr("find faq", err)
	}

	faqs, err := b.storage.ListFAQ(ctx)
	if err != nil {
		return nil, transportErr("list faqs", err)
	}

	loading := b.postLoading(ctx, in)

	reply, err := b.responder.Answer(ctx, profile, faqs, in.Text, lastK)
	if err != nil {
		b.finishLoading(ctx, loading, loadingDoneText)
		if IsMalformed(err) {
			return nil, err
		}
		return nil, transportErr("answer", err)
	}

	out, err := b.dispatch(ctx, in, profile, reply)
	if err != nil {
		b.finishLoading(ctx, loading, loadingDoneText)
		return nil, err
	}

	if out.ThreadID != "" {
		b.finishLoading(ctx, loading, loadingLinkedText)
	} else {
		b.finishLoading(ctx, loading, loadingDoneText)
	}
	return out, nil
}

func (b *Bot) loadProfile(ctx context.Context, in Inbound) (*models.UserProfile, error) {
	profile, err := b.storage.GetUser(ctx, in.UserID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, transportErr("get user", err)
	}

	profile = &models.UserProfile{UserID: in.UserID, Username: in.UserName}
	err = b.storage.CreateUser(ctx, profile)
	switch {
	case err == nil:
		b.logger.Info("Created user profile", zap.String("user_id", in.UserID))
		return profile, nil
	case errors.Is(err, storage.ErrAlreadyExists):
		// Lost a race with a concurrent first message
		profile, err = b.storage.GetUser(ctx, in.UserID)
		if err != nil {
			return nil, transportErr("get user", err)
		}
		return profile, nil
	default:
		return nil, transportErr("create user", err)
	}
}

// confirmEscalation treats the message after a confirmation prompt as the
// question to escalate. handled is false when another delivery already
// consumed the pending state.
func (b *Bot) confirmEscalation(ctx context.Context, in Inbound, profile *models.UserProfile) (*Outbound, bool, error) {
	question := in.Text
	if strings.TrimSpace(in.Text) == ConfirmSendText && profile.PendingQuestion != "" {
		question = profile.PendingQuestion
	}

	swapped, err := b.storage.SetPendingEscalation(ctx, in.UserID, true, false, "")
	if err != nil {
		return nil, true, transportErr("clear pending escalation", err)
	}
	if !swapped {
		return nil, false, nil
	}

	draft, err := b.responder.Draft(ctx, profile, question)
	if err != nil {
		b.restorePending(ctx, in.UserID, profile.PendingQuestion)
		b.metrics.RecordEscalation("failed")
		if IsMalformed(err) {
			return nil, true, err
		}
		return nil, true, transportErr("draft", err)
	}

	err = b.linker.Escalate(ctx, Escalation{
		StudentMessageID: in.MessageID,
		Username:         in.UserName,
		Question:         question,
		LLMAnswer:        draft.LLMAnswer,
		UncertainAreas:   draft.UncertainAreas,
	})
	if err != nil {
		return nil, true, err
	}

	b.metrics.RecordReply(string(advisor.CategoryHumanRequested))
	return &Outbound{Text: connectingText, ThreadID: in.MessageID}, true, nil
}

// restorePending lets the student retry the confirmation after a failure
// that happened before anything was posted to the advisor.
func (b *Bot) restorePending(ctx context.Context, userID, question string) {
	if _, err := b.storage.SetPendingEscalation(ctx, userID, false, true, question); err != nil {
		b.logger.Error("Failed to restore pending escalation",
			zap.Error(err),
			zap.String("user_id", userID))
	}
}

func (b *Bot) postLoading(ctx context.Context, in Inbound) *rocketchat.Posted {
	if !b.cfg.LoadingMessage || in.UserName == "" {
		return nil
	}
	posted, err := b.messenger.Post(ctx, rocketchat.Message{
		Channel: "@" + in.UserName,
		Text:    loadingText,
	})
	if err != nil {
		b.metrics.RecordMessagingError("post_loading")
		b.logger.Warn("Failed to post loading message",
			zap.Error(err),
			zap.String("user_id", in.UserID))
		return nil
	}
	return posted
}

func (b *Bot) finishLoading(ctx context.Context, posted *rocketchat.Posted, text string) {
	if posted == nil {
		return
	}
	if err := b.messenger.Update(ctx, posted.RoomID, posted.ID, text); err != nil {
		b.metrics.RecordMessagingError("update_loading")
		b.logger.Warn("Failed to update loading message",
			zap.Error(err),
			zap.String("message_id", posted.ID))
	}
}
