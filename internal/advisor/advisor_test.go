package advisor

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/advising-bot/internal/completion"
	"github.com/xaenox/advising-bot/internal/models"
	"go.uber.org/zap/zaptest"
)

type stubCompleter struct {
	text string
	err  error
	reqs []completion.Request
}

func (s *stubCompleter) Complete(ctx context.Context, req completion.Request) (*completion.Result, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &completion.Result{Text: s.text}, nil
}

type recordingObserver struct {
	kinds []string
}

func (o *recordingObserver) ObserveCompletion(kind string, d time.Duration, err error) {
	o.kinds = append(o.kinds, kind)
}

func newTestAdvisor(t *testing.T, c completion.Completer, obs Observer) *Advisor {
	t.Helper()
	prompts, err := LoadPromptSet(nil, "")
	require.NoError(t, err)
	cfg := Config{
		SessionPrefix: "cs-advising",
		MaxHistory:    5,
		RAG:           completion.RAGOptions{Usage: true, Threshold: 0.5, K: 3},
	}
	return New(c, prompts, cfg, obs, zaptest.NewLogger(t))
}

func TestLoadPromptSet_Builtin(t *testing.T) {
	prompts, err := LoadPromptSet(nil, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPromptVersion, prompts.Version)

	domestic := false
	profile := &models.UserProfile{
		UserID: "u1",
		Transcript: models.Transcript{
			Program:          "MSCS",
			GPA:              3.85,
			Domestic:         &domestic,
			CompletedCourses: []models.Course{{CourseID: "CS105", CourseName: "Programming Languages", Grade: "A"}},
		},
	}
	faqs := []*models.FAQEntry{{QuestionID: 4, Question: "How many credits do I need?"}}

	system, err := prompts.Answer(NewPromptData(profile, faqs))
	require.NoError(t, err)
	assert.Contains(t, system, "Program: MSCS")
	assert.Contains(t, system, "CS105 Programming Languages (grade: A)")
	assert.Contains(t, system, "GPA: 3.85")
	assert.Contains(t, system, "international student")
	assert.Contains(t, system, "4: How many credits do I need?")
	assert.Contains(t, system, `"category_id": "7"`)

	draft, err := prompts.Draft(NewPromptData(&models.UserProfile{}, nil))
	require.NoError(t, err)
	assert.Contains(t, draft, "Program: not provided")
	assert.Contains(t, draft, "llmAnswer")
}

func TestLoadPromptSet_CustomVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"v8/answer.tmpl": {Data: []byte("answer for {{.Program}}")},
		"v8/draft.tmpl":  {Data: []byte("draft for {{.Program}}")},
	}
	prompts, err := LoadPromptSet(fsys, "v8")
	require.NoError(t, err)

	out, err := prompts.Answer(PromptData{Program: "MSDS"})
	require.NoError(t, err)
	assert.Equal(t, "answer for MSDS", out)

	_, err = LoadPromptSet(fsys, "v9")
	assert.Error(t, err)
}

func TestAdvisor_Answer(t *testing.T) {
	stub := &stubCompleter{text: `{"category_id":"2","response":"30 credits","suggestedQuestions":["a","b","c"]}`}
	obs := &recordingObserver{}
	a := newTestAdvisor(t, stub, obs)

	profile := &models.UserProfile{UserID: "u1"}
	reply, err := a.Answer(context.Background(), profile, nil, "How many credits?", 12)
	require.NoError(t, err)
	assert.Equal(t, CategoryAnswered, reply.Category())

	require.Len(t, stub.reqs, 1)
	req := stub.reqs[0]
	assert.Equal(t, "How many credits?", req.Query)
	assert.Equal(t, "cs-advising-u1", req.SessionID)
	assert.Equal(t, 5, req.LastK, "history is capped")
	assert.True(t, req.RAG.Usage)
	assert.Equal(t, []string{"answer"}, obs.kinds)
}

func TestAdvisor_AnswerErrors(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		boom := errors.New("connection refused")
		a := newTestAdvisor(t, &stubCompleter{err: boom}, nil)
		_, err := a.Answer(context.Background(), &models.UserProfile{UserID: "u1"}, nil, "hi", 0)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("malformed", func(t *testing.T) {
		a := newTestAdvisor(t, &stubCompleter{text: "I am not JSON"}, nil)
		_, err := a.Answer(context.Background(), &models.UserProfile{UserID: "u1"}, nil, "hi", 0)
		var malformed *MalformedError
		assert.ErrorAs(t, err, &malformed)
	})
}

func TestAdvisor_Draft(t *testing.T) {
	stub := &stubCompleter{text: `{"llmAnswer":"You need a thesis committee.","uncertainAreas":"deadlines"}`}
	a := newTestAdvisor(t, stub, nil)

	draft, err := a.Draft(context.Background(), &models.UserProfile{UserID: "u1", LastK: 2}, "thesis requirements")
	require.NoError(t, err)
	assert.Equal(t, "You need a thesis committee.", draft.LLMAnswer)
	assert.Equal(t, "deadlines", draft.UncertainAreas)
	assert.Equal(t, "thesis requirements", stub.reqs[0].Query)
	assert.Equal(t, 2, stub.reqs[0].LastK)
}
