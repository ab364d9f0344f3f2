package advisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Category tags the completion's JSON reply
type Category string

const (
	CategoryGreeting         Category = "1"
	CategoryAnswered         Category = "2"
	CategoryUnanswered       Category = "3"
	CategoryPolicyEscalation Category = "3.1"
	CategoryHumanRequested   Category = "4"
	CategoryOutOfScope       Category = "5"
	CategoryNeedsInfo        Category = "6"
	CategoryClosing          Category = "7"
)

// MaxSuggestedQuestions is how many follow-up buttons an answer carries
const MaxSuggestedQuestions = 3

// ErrEscalationPayload marks an escalating reply without the fields a human
// advisor needs. It is always wrapped in a *MalformedError.
var ErrEscalationPayload = errors.New("escalation payload missing required fields")

// MalformedError is returned when completion text cannot be turned into a Reply
type MalformedError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed completion: %s: %v", e.Reason, e.Err)
	}
	return "malformed completion: " + e.Reason
}

func (e *MalformedError) Unwrap() error { return e.Err }

// EscalationPayload is what gets forwarded to the human advisor
type EscalationPayload struct {
	OriginalQuestion string
	LLMAnswer        string
	UncertainAreas   string
}

// Reply is one of Greeting, Answered, Unanswered, PolicyEscalation,
// HumanRequested, OutOfScope, NeedsInfo or Closing.
type Reply interface {
	Category() Category
	Text() string
	reply()
}

type Greeting struct{ Response string }

type Answered struct {
	Response           string
	SuggestedQuestions []string
}

type Unanswered struct{ Response string }

// PolicyEscalation is any reply carrying an escalation payload other than an
// explicit request for a human.
type PolicyEscalation struct {
	Response string
	Payload  EscalationPayload
}

type HumanRequested struct {
	Response string
	Payload  EscalationPayload
}

type OutOfScope struct{ Response string }

type NeedsInfo struct{ Response string }

type Closing struct{ Response string }

func (r Greeting) Category() Category         { return CategoryGreeting }
func (r Answered) Category() Category         { return CategoryAnswered }
func (r Unanswered) Category() Category       { return CategoryUnanswered }
func (r PolicyEscalation) Category() Category { return CategoryPolicyEscalation }
func (r HumanRequested) Category() Category   { return CategoryHumanRequested }
func (r OutOfScope) Category() Category       { return CategoryOutOfScope }
func (r NeedsInfo) Category() Category        { return CategoryNeedsInfo }
func (r Closing) Category() Category          { return CategoryClosing }

func (r Greeting) Text() string         { return r.Response }
func (r Answered) Text() string         { return r.Response }
func (r Unanswered) Text() string       { return r.Response }
func (r PolicyEscalation) Text() string { return r.Response }
func (r HumanRequested) Text() string   { return r.Response }
func (r OutOfScope) Text() string       { return r.Response }
func (r NeedsInfo) Text() string        { return r.Response }
func (r Closing) Text() string          { return r.Response }

func (Greeting) reply()         {}
func (Answered) reply()         {}
func (Unanswered) reply()       {}
func (PolicyEscalation) reply() {}
func (HumanRequested) reply()   {}
func (OutOfScope) reply()       {}
func (NeedsInfo) reply()        {}
func (Closing) reply()          {}

type wirePayload struct {
	OriginalQuestion string `json:"originalQuestion"`
	LLMAnswer        string `json:"llmAnswer"`
	UncertainAreas   string `json:"uncertainAreas"`
}

type wireReply struct {
	CategoryID         any          `json:"category_id"`
	Response           string       `json:"response"`
	SuggestedQuestions []string     `json:"suggestedQuestions"`
	Payload            *wirePayload `json:"rocketChatPayload"`
}

// ParseReply decodes the completion text into a Reply. A non-blank
// rocketChatPayload turns every category except 4 into a PolicyEscalation.
func ParseReply(raw string) (Reply, error) {
	var w wireReply
	if err := decodeObject(raw, &w); err != nil {
		return nil, &MalformedError{Raw: raw, Reason: "invalid JSON", Err: err}
	}

	category, ok := normalizeCategory(w.CategoryID)
	if !ok {
		return nil, &MalformedError{Raw: raw, Reason: fmt.Sprintf("unknown category_id %v", w.CategoryID)}
	}
	if strings.TrimSpace(w.Response) == "" {
		return nil, &MalformedError{Raw: raw, Reason: "missing response"}
	}

	if category == CategoryHumanRequested {
		payload, err := requirePayload(raw, w.Payload, true)
		if err != nil {
			return nil, err
		}
		return HumanRequested{Response: w.Response, Payload: payload}, nil
	}

	if !w.Payload.blank() || category == CategoryPolicyEscalation {
		payload, err := requirePayload(raw, w.Payload, false)
		if err != nil {
			return nil, err
		}
		return PolicyEscalation{Response: w.Response, Payload: payload}, nil
	}

	switch category {
	case CategoryGreeting:
		return Greeting{Response: w.Response}, nil
	case CategoryAnswered:
		questions := nonEmpty(w.SuggestedQuestions)
		if len(questions) == 0 {
			return nil, &MalformedError{Raw: raw, Reason: "category 2 without suggestedQuestions"}
		}
		if len(questions) > MaxSuggestedQuestions {
			questions = questions[:MaxSuggestedQuestions]
		}
		return Answered{Response: w.Response, SuggestedQuestions: questions}, nil
	case CategoryUnanswered:
		return Unanswered{Response: w.Response}, nil
	case CategoryOutOfScope:
		return OutOfScope{Response: w.Response}, nil
	case CategoryNeedsInfo:
		return NeedsInfo{Response: w.Response}, nil
	case CategoryClosing:
		return Closing{Response: w.Response}, nil
	}

	return nil, &MalformedError{Raw: raw, Reason: fmt.Sprintf("unhandled category %s", category)}
}

// blank reports a missing payload or one with no filled fields, e.g. {}
func (p *wirePayload) blank() bool {
	return p == nil ||
		strings.TrimSpace(p.OriginalQuestion) == "" &&
			strings.TrimSpace(p.LLMAnswer) == "" &&
			strings.TrimSpace(p.UncertainAreas) == ""
}

func requirePayload(raw string, p *wirePayload, needUncertainty bool) (EscalationPayload, error) {
	if p == nil ||
		strings.TrimSpace(p.OriginalQuestion) == "" ||
		strings.TrimSpace(p.LLMAnswer) == "" ||
		(needUncertainty && strings.TrimSpace(p.UncertainAreas) == "") {
		return EscalationPayload{}, &MalformedError{Raw: raw, Reason: "incomplete rocketChatPayload", Err: ErrEscalationPayload}
	}
	return EscalationPayload{
		OriginalQuestion: p.OriginalQuestion,
		LLMAnswer:        p.LLMAnswer,
		UncertainAreas:   p.UncertainAreas,
	}, nil
}

// Draft is the advisor-facing answer produced after a confirmed escalation
type Draft struct {
	LLMAnswer      string
	UncertainAreas string
}

// ParseDraft decodes the escalation prompt's reply. The fields are accepted
// either at the top level or nested under rocketChatPayload.
func ParseDraft(raw string) (*Draft, error) {
	var w struct {
		wirePayload
		Payload *wirePayload `json:"rocketChatPayload"`
	}
	if err := decodeObject(raw, &w); err != nil {
		return nil, &MalformedError{Raw: raw, Reason: "invalid JSON", Err: err}
	}

	d := &Draft{LLMAnswer: w.LLMAnswer, UncertainAreas: w.UncertainAreas}
	if w.Payload != nil {
		if d.LLMAnswer == "" {
			d.LLMAnswer = w.Payload.LLMAnswer
		}
		if d.UncertainAreas == "" {
			d.UncertainAreas = w.Payload.UncertainAreas
		}
	}

	if strings.TrimSpace(d.LLMAnswer) == "" {
		return nil, &MalformedError{Raw: raw, Reason: "missing llmAnswer", Err: ErrEscalationPayload}
	}
	return d, nil
}

// decodeObject unmarshals a JSON object, tolerating markdown code fences and
// prose around it.
func decodeObject(raw string, v any) error {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	err := json.Unmarshal([]byte(text), v)
	if err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return err
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func normalizeCategory(v any) (Category, bool) {
	var s string
	switch id := v.(type) {
	case string:
		s = strings.TrimSpace(id)
	case float64:
		s = strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return "", false
	}

	switch Category(s) {
	case CategoryGreeting, CategoryAnswered, CategoryUnanswered, CategoryPolicyEscalation,
		CategoryHumanRequested, CategoryOutOfScope, CategoryNeedsInfo, CategoryClosing:
		return Category(s), true
	case "3.2":
		return CategoryUnanswered, true
	}
	return "", false
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
