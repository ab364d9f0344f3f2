package advisor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply_Categories(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Reply
	}{
		{
			name: "greeting",
			raw:  `{"category_id":"1","response":"Hello!"}`,
			want: Greeting{Response: "Hello!"},
		},
		{
			name: "answered",
			raw:  `{"category_id":"2","response":"30 credits","suggestedQuestions":["a","b","c"]}`,
			want: Answered{Response: "30 credits", SuggestedQuestions: []string{"a", "b", "c"}},
		},
		{
			name: "answered truncates extra questions",
			raw:  `{"category_id":"2","response":"x","suggestedQuestions":["a","","b","c","d"]}`,
			want: Answered{Response: "x", SuggestedQuestions: []string{"a", "b", "c"}},
		},
		{
			name: "unanswered",
			raw:  `{"category_id":"3","response":"not covered"}`,
			want: Unanswered{Response: "not covered"},
		},
		{
			name: "legacy 3.2 is unanswered",
			raw:  `{"category_id":"3.2","response":"not covered"}`,
			want: Unanswered{Response: "not covered"},
		},
		{
			name: "policy escalation",
			raw:  `{"category_id":"3.1","response":"connecting","rocketChatPayload":{"originalQuestion":"q","llmAnswer":"a","uncertainAreas":"u"}}`,
			want: PolicyEscalation{Response: "connecting", Payload: EscalationPayload{OriginalQuestion: "q", LLMAnswer: "a", UncertainAreas: "u"}},
		},
		{
			name: "human requested",
			raw:  `{"category_id":"4","response":"connecting","rocketChatPayload":{"originalQuestion":"q","llmAnswer":"a","uncertainAreas":"u"}}`,
			want: HumanRequested{Response: "connecting", Payload: EscalationPayload{OriginalQuestion: "q", LLMAnswer: "a", UncertainAreas: "u"}},
		},
		{
			name: "out of scope",
			raw:  `{"category_id":"5","response":"outside my scope"}`,
			want: OutOfScope{Response: "outside my scope"},
		},
		{
			name: "needs info",
			raw:  `{"category_id":"6","response":"what is your GPA?"}`,
			want: NeedsInfo{Response: "what is your GPA?"},
		},
		{
			name: "closing",
			raw:  `{"category_id":"7","response":"bye"}`,
			want: Closing{Response: "bye"},
		},
		{
			name: "numeric category id",
			raw:  `{"category_id":3.1,"response":"r","rocketChatPayload":{"originalQuestion":"q","llmAnswer":"a"}}`,
			want: PolicyEscalation{Response: "r", Payload: EscalationPayload{OriginalQuestion: "q", LLMAnswer: "a"}},
		},
		{
			name: "payload wins over suggested questions",
			raw:  `{"category_id":"2","response":"r","suggestedQuestions":["a"],"rocketChatPayload":{"originalQuestion":"q","llmAnswer":"a"}}`,
			want: PolicyEscalation{Response: "r", Payload: EscalationPayload{OriginalQuestion: "q", LLMAnswer: "a"}},
		},
		{
			name: "empty payload is ignored",
			raw:  `{"category_id":"2","response":"r","suggestedQuestions":["a","b","c"],"rocketChatPayload":{}}`,
			want: Answered{Response: "r", SuggestedQuestions: []string{"a", "b", "c"}},
		},
		{
			name: "blank payload fields are ignored",
			raw:  `{"category_id":"1","response":"hi","rocketChatPayload":{"originalQuestion":" ","llmAnswer":""}}`,
			want: Greeting{Response: "hi"},
		},
		{
			name: "code fence",
			raw:  "```json\n{\"category_id\":\"7\",\"response\":\"bye\"}\n```",
			want: Closing{Response: "bye"},
		},
		{
			name: "surrounding prose",
			raw:  "Here you go: {\"category_id\":\"1\",\"response\":\"hi\"} hope it helps",
			want: Greeting{Response: "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Category(), got.Category())
		})
	}
}

func TestParseReply_Malformed(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		payloadProblem bool
	}{
		{name: "not json", raw: "Sorry, something went wrong"},
		{name: "empty", raw: ""},
		{name: "array", raw: `["1"]`},
		{name: "unknown category", raw: `{"category_id":"9","response":"x"}`},
		{name: "missing category", raw: `{"response":"x"}`},
		{name: "missing response", raw: `{"category_id":"1"}`},
		{name: "answered without questions", raw: `{"category_id":"2","response":"x"}`},
		{name: "3.1 without payload", raw: `{"category_id":"3.1","response":"x"}`, payloadProblem: true},
		{name: "3.1 with empty payload", raw: `{"category_id":"3.1","response":"x","rocketChatPayload":{}}`, payloadProblem: true},
		{name: "4 without payload", raw: `{"category_id":"4","response":"x"}`, payloadProblem: true},
		{name: "4 without uncertainty", raw: `{"category_id":"4","response":"x","rocketChatPayload":{"originalQuestion":"q","llmAnswer":"a"}}`, payloadProblem: true},
		{name: "payload without question", raw: `{"category_id":"1","response":"x","rocketChatPayload":{"llmAnswer":"a"}}`, payloadProblem: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := ParseReply(tt.raw)
			require.Error(t, err)
			assert.Nil(t, reply)

			var malformed *MalformedError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.raw, malformed.Raw)
			assert.Equal(t, tt.payloadProblem, errors.Is(err, ErrEscalationPayload))
		})
	}
}

func TestParseDraft(t *testing.T) {
	d, err := ParseDraft(`{"llmAnswer":"answer","uncertainAreas":"dates"}`)
	require.NoError(t, err)
	assert.Equal(t, &Draft{LLMAnswer: "answer", UncertainAreas: "dates"}, d)

	d, err = ParseDraft(`{"rocketChatPayload":{"llmAnswer":"nested","uncertainAreas":"all"}}`)
	require.NoError(t, err)
	assert.Equal(t, &Draft{LLMAnswer: "nested", UncertainAreas: "all"}, d)

	_, err = ParseDraft(`{"uncertainAreas":"everything"}`)
	assert.ErrorIs(t, err, ErrEscalationPayload)

	_, err = ParseDraft(`nope`)
	var malformed *MalformedError
	assert.ErrorAs(t, err, &malformed)
}
