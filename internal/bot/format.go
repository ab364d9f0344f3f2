package bot

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xaenox/advising-bot/internal/advisor"
	"github.com/xaenox/advising-bot/internal/rocketchat"
)

// ConfirmSendText is the message the "Correct & Send" button posts
const ConfirmSendText = "Correct & Send"

// HumanRequestText is the message the "Connect to a human advisor" button posts
const HumanRequestText = "I would like to talk to a human advisor."

const (
	loadingText       = " :everything_fine_parrot: Processing your inquiry. One moment please..."
	loadingDoneText   = " :kirby_vibing: Ta-da! Your answer is ready!"
	loadingLinkedText = " :coll_doge_gif: Your question has been forwarded to a human academic advisor. To begin your conversation, please click the \"View Thread\" button."
	connectingText    = "Thanks for confirming! Connecting you to a human advisor... Please click \"View Thread\" to continue the conversation."
)

// withSuggestions renders an answer followed by numbered follow-up questions
// and one button per question.
func withSuggestions(text string, questions []string) *Outbound {
	if len(questions) == 0 {
		return &Outbound{Text: text}
	}

	lines := make([]string, len(questions))
	buttons := make([]rocketchat.Button, len(questions))
	for i, q := range questions {
		lines[i] = fmt.Sprintf("%d. %s", i+1, q)
		buttons[i] = rocketchat.NewButton(fmt.Sprintf("%d", i+1), q, rocketchat.ProcessSendMessage)
	}

	return &Outbound{
		Text: text + "\n\n🤔 You might also want to know:\n" + strings.Join(lines, "\n"),
		Attachments: []rocketchat.Attachment{{
			Title:   "Click a number to ask that question:",
			Actions: buttons,
		}},
	}
}

// withHumanOption offers a hand-off to the advisor when there is nothing
// else to suggest.
func withHumanOption(text string) *Outbound {
	return &Outbound{
		Text: text,
		Attachments: []rocketchat.Attachment{{
			Title: "Need more help?",
			Actions: []rocketchat.Button{
				rocketchat.NewButton("🧑‍💼 Connect to a human advisor", HumanRequestText, rocketchat.ProcessSendMessage),
			},
		}},
	}
}

// confirmation asks the student to approve or edit the summary sent to the advisor
func confirmation(r advisor.HumanRequested) *Outbound {
	text := r.Response +
		"\n\n📝 Here is the question I will send to the advisor:\n> " + r.Payload.OriginalQuestion +
		"\n\nClick **Correct & Send** to forward it, or **Modify** to edit it first."

	return &Outbound{
		Text: text,
		Attachments: []rocketchat.Attachment{{
			Title: "🚀 Connecting to a human advisor",
			Actions: []rocketchat.Button{
				rocketchat.NewButton("✅ Correct & Send", ConfirmSendText, rocketchat.ProcessSendMessage),
				rocketchat.NewButton("✏️ Modify", r.Payload.OriginalQuestion, rocketchat.ProcessRespondWithMsg),
			},
		}},
	}
}

func studentInfoLink(publicURL, userID string) string {
	if publicURL == "" {
		return ""
	}
	link := strings.TrimRight(publicURL, "/") + "/student-info?" + url.Values{"id": {userID}}.Encode()
	return "\n\n :kirby_fly: Want a more personalized advising experience? Share a bit more about your studies using [this link](" + link + ")."
}

func alertText(e Escalation) string {
	return fmt.Sprintf("🚨 *Escalation Alert* 🚨\n Student %s has requested help. \n"+
		"\n💬 Student Question: %s"+
		"\n\n Please click on *View Thread* to view the AI-generated response designed to help you address student questions.\n",
		e.Username, e.Question)
}

func draftText(e Escalation) string {
	text := "I've generated a response to help you address student questions based on available information. " +
		"If you find this AI-generated answer helpful, *click ✏️ Copy to chat button* to paste it to your chatbox. \n\n" +
		"🤖 AI-Generated Answer: " + e.LLMAnswer + "\n"
	if e.UncertainAreas != "" {
		text += "\n❓ Uncertain Areas: " + e.UncertainAreas + "\n"
	}
	return text
}

func draftAttachments(e Escalation) []rocketchat.Attachment {
	return []rocketchat.Attachment{{
		Title: "AI response looks good?",
		Actions: []rocketchat.Button{
			rocketchat.NewButton("✏️ Copy to chat", e.LLMAnswer, rocketchat.ProcessRespondWithMsg),
		},
	}}
}

func studentForwardText(username, text string) string {
	return fmt.Sprintf("🐘 *%s (student):* %s", username, text)
}

func advisorForwardText(advisorName, text string) string {
	return fmt.Sprintf("👤 *%s (Human Advisor):* %s", advisorName, text)
}
