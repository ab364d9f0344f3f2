package bot

import (
	"context"
	"fmt"

	"github.com/xaenox/advising-bot/internal/advisor"
	"github.com/xaenox/advising-bot/internal/models"
	"go.uber.org/zap"
)

// dispatch performs the action attached to a reply's category
func (b *Bot) dispatch(ctx context.Context, in Inbound, profile *models.UserProfile, reply advisor.Reply) (*Outbound, error) {
	var out *Outbound

	switch r := reply.(type) {
	case advisor.Greeting:
		out = withSuggestions(r.Response, advisor.CannedQuestions)
	case advisor.Answered:
		out = withSuggestions(r.Response, r.SuggestedQuestions)
	case advisor.Unanswered:
		out = &Outbound{Text: r.Response}
	case advisor.PolicyEscalation:
		err := b.linker.Escalate(ctx, Escalation{
			StudentMessageID: in.MessageID,
			Username:         in.UserName,
			Question:         r.Payload.OriginalQuestion,
			LLMAnswer:        r.Payload.LLMAnswer,
			UncertainAreas:   r.Payload.UncertainAreas,
		})
		if err != nil {
			return nil, err
		}
		out = &Outbound{Text: r.Response, ThreadID: in.MessageID}
	case advisor.HumanRequested:
		if err := b.markPending(ctx, profile.UserID, r.Payload.OriginalQuestion); err != nil {
			return nil, err
		}
		b.metrics.RecordEscalation("confirm_requested")
		out = confirmation(r)
	case advisor.OutOfScope:
		out = withSuggestions(r.Response, advisor.CannedQuestions)
	case advisor.NeedsInfo:
		out = &Outbound{Text: r.Response + studentInfoLink(b.cfg.PublicURL, profile.UserID)}
	case advisor.Closing:
		out = &Outbound{Text: r.Response}
	default:
		return nil, &advisor.MalformedError{Reason: fmt.Sprintf("unhandled reply %T", reply)}
	}

	b.metrics.RecordReply(string(reply.Category()))
	return out, nil
}

// markPending stores the question awaiting confirmation. A concurrent
// message may already have set the flag, in which case its question is
// replaced so the stored summary matches the one just shown.
func (b *Bot) markPending(ctx context.Context, userID, question string) error {
	for range 2 {
		for _, from := range []bool{false, true} {
			swapped, err := b.storage.SetPendingEscalation(ctx, userID, from, true, question)
			if err != nil {
				return transportErr("set pending escalation", err)
			}
			if swapped {
				if from {
					b.logger.Warn("Replaced pending escalation question", zap.String("user_id", userID))
				}
				return nil
			}
		}
	}
	return fmt.Errorf("pending escalation for %s kept changing", userID)
}
