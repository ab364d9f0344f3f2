package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xaenox/advising-bot/internal/metrics"
	"github.com/xaenox/advising-bot/internal/models"
	"github.com/xaenox/advising-bot/internal/notify"
	"github.com/xaenox/advising-bot/internal/rocketchat"
	"github.com/xaenox/advising-bot/internal/storage"
	"go.uber.org/zap"
)

const notifyTimeout = 30 * time.Second

// Escalation is a question handed over to the human advisor
type Escalation struct {
	StudentMessageID string
	Username         string
	Question         string
	LLMAnswer        string
	UncertainAreas   string
}

type LinkerConfig struct {
	// AdvisorChannel receives escalation alerts and forwarded student
	// messages, e.g. "@advisor" or "#advising".
	AdvisorChannel string
}

// Linker escalates conversations to the advisor and relays messages between
// the two linked threads afterwards.
type Linker struct {
	threads   storage.ThreadStorage
	messenger Messenger
	notifier  notify.Notifier
	cfg       LinkerConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger

	wg sync.WaitGroup
}

func NewLinker(threads storage.ThreadStorage, messenger Messenger, notifier notify.Notifier, cfg LinkerConfig, m *metrics.Metrics, logger *zap.Logger) *Linker {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Linker{
		threads:   threads,
		messenger: messenger,
		notifier:  notifier,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// Escalate posts the alert and the threaded draft to the advisor channel and
// links the student's message with the alert. Posts are never retried so the
// advisor sees each alert once.
func (l *Linker) Escalate(ctx context.Context, e Escalation) error {
	alert, err := l.messenger.Post(ctx, rocketchat.Message{
		Channel: l.cfg.AdvisorChannel,
		Text:    alertText(e),
	})
	if err != nil {
		l.metrics.RecordMessagingError("post_alert")
		l.metrics.RecordEscalation("failed")
		return transportErr("post escalation alert", err)
	}

	// The alert is out, so a failed draft must not block the link
	_, err = l.messenger.Post(ctx, rocketchat.Message{
		Channel:     l.cfg.AdvisorChannel,
		Text:        draftText(e),
		ThreadID:    alert.ID,
		Attachments: draftAttachments(e),
	})
	if err != nil {
		l.metrics.RecordMessagingError("post_draft")
		l.logger.Error("Failed to post escalation draft",
			zap.Error(err),
			zap.String("alert_id", alert.ID))
	}

	if err := l.threads.CreateThreads(ctx, models.NewThreadPair(e.StudentMessageID, alert.ID, e.Username)); err != nil {
		l.metrics.RecordEscalation("failed")
		return transportErr("link threads", err)
	}

	l.metrics.RecordEscalation("linked")
	l.logger.Info("Escalated to human advisor",
		zap.String("student", e.Username),
		zap.String("student_message_id", e.StudentMessageID),
		zap.String("alert_id", alert.ID))

	l.notify(ctx, e)
	return nil
}

// notify emails the advisor in the background. Failures are only logged.
func (l *Linker) notify(ctx context.Context, e Escalation) {
	ctx = context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		err := l.notifier.NotifyEscalation(ctx, notify.Escalation{
			Student:        e.Username,
			Question:       e.Question,
			LLMAnswer:      e.LLMAnswer,
			UncertainAreas: e.UncertainAreas,
		})
		if err != nil {
			l.logger.Warn("Failed to send escalation email",
				zap.Error(err),
				zap.String("student", e.Username))
		}
	}()
}

// Forward relays a threaded message to the other side of its link. It never
// involves the completion service.
func (l *Linker) Forward(ctx context.Context, username, text, threadID string) error {
	link, err := l.threads.GetThread(ctx, threadID)
	if errors.Is(err, storage.ErrNotFound) {
		return &RoutingError{ThreadID: threadID}
	}
	if err != nil {
		return transportErr("get thread", err)
	}

	msg := rocketchat.Message{ThreadID: link.ForwardThreadID}
	direction := "to_student"
	if link.ForwardHuman {
		msg.Channel = l.cfg.AdvisorChannel
		msg.Text = studentForwardText(username, text)
		direction = "to_advisor"
	} else {
		msg.Channel = "@" + link.ForwardUsername
		msg.Text = advisorForwardText(username, text)
	}

	if _, err := l.messenger.Post(ctx, msg); err != nil {
		l.metrics.RecordMessagingError("post_forward")
		return transportErr("forward message", err)
	}

	l.metrics.RecordForward(direction)
	return nil
}

// Wait blocks until background notifications finish
func (l *Linker) Wait() {
	l.wg.Wait()
}
