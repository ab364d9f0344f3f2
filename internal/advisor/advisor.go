// Package advisor builds the advising prompts, calls the completion service
// and turns its JSON replies into typed Reply values.
package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/xaenox/advising-bot/internal/completion"
	"github.com/xaenox/advising-bot/internal/models"
	"go.uber.org/zap"
)

type Config struct {
	// SessionPrefix scopes the remote conversation memory; the user id is appended.
	SessionPrefix string
	// MaxHistory caps how many earlier turns the service replays.
	MaxHistory int
	RAG        completion.RAGOptions
}

// Observer receives completion latency and outcome, e.g. for metrics
type Observer interface {
	ObserveCompletion(kind string, d time.Duration, err error)
}

type Advisor struct {
	completer completion.Completer
	prompts   *PromptSet
	cfg       Config
	observer  Observer
	logger    *zap.Logger
}

func New(completer completion.Completer, prompts *PromptSet, cfg Config, observer Observer, logger *zap.Logger) *Advisor {
	return &Advisor{
		completer: completer,
		prompts:   prompts,
		cfg:       cfg,
		observer:  observer,
		logger:    logger,
	}
}

// Answer classifies and answers a student query. lastK is the number of
// earlier interactions with the user.
func (a *Advisor) Answer(ctx context.Context, profile *models.UserProfile, faqs []*models.FAQEntry, query string, lastK int) (Reply, error) {
	system, err := a.prompts.Answer(NewPromptData(profile, faqs))
	if err != nil {
		return nil, err
	}

	raw, err := a.complete(ctx, "answer", completion.Request{
		System:    system,
		Query:     query,
		SessionID: a.sessionID(profile),
		LastK:     min(lastK, a.cfg.MaxHistory),
		RAG:       a.cfg.RAG,
	})
	if err != nil {
		return nil, err
	}

	reply, err := ParseReply(raw)
	if err != nil {
		a.logger.Error("Failed to parse completion",
			zap.Error(err),
			zap.String("user_id", profile.UserID),
			zap.String("response", raw))
		return nil, err
	}

	a.logger.Info("Completion categorized",
		zap.String("user_id", profile.UserID),
		zap.String("category", string(reply.Category())))

	return reply, nil
}

// Draft produces the answer and uncertainty notes shown to the human advisor
// once the student confirmed the question to escalate.
func (a *Advisor) Draft(ctx context.Context, profile *models.UserProfile, question string) (*Draft, error) {
	system, err := a.prompts.Draft(NewPromptData(profile, nil))
	if err != nil {
		return nil, err
	}

	raw, err := a.complete(ctx, "draft", completion.Request{
		System:    system,
		Query:     question,
		SessionID: a.sessionID(profile),
		LastK:     min(profile.LastK, a.cfg.MaxHistory),
		RAG:       a.cfg.RAG,
	})
	if err != nil {
		return nil, err
	}

	draft, err := ParseDraft(raw)
	if err != nil {
		a.logger.Error("Failed to parse escalation draft",
			zap.Error(err),
			zap.String("user_id", profile.UserID),
			zap.String("response", raw))
		return nil, err
	}

	return draft, nil
}

func (a *Advisor) complete(ctx context.Context, kind string, req completion.Request) (string, error) {
	start := time.Now()
	res, err := a.completer.Complete(ctx, req)
	if a.observer != nil {
		a.observer.ObserveCompletion(kind, time.Since(start), err)
	}
	if err != nil {
		return "", fmt.Errorf("complete %s: %w", kind, err)
	}
	return res.Text, nil
}

func (a *Advisor) sessionID(profile *models.UserProfile) string {
	if a.cfg.SessionPrefix == "" {
		return profile.UserID
	}
	return a.cfg.SessionPrefix + "-" + profile.UserID
}
