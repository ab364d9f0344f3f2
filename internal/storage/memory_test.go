package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/advising-bot/internal/models"
)

func newUser(t *testing.T, s *MemoryStorage, id string) {
	t.Helper()
	require.NoError(t, s.CreateUser(context.Background(), &models.UserProfile{UserID: id, Username: id}))
}

func TestMemoryStorage_UserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	_, err := s.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	newUser(t, s, "u1")
	assert.ErrorIs(t, s.CreateUser(ctx, &models.UserProfile{UserID: "u1"}), ErrAlreadyExists)

	domestic := false
	err = s.UpdateUser(ctx, "u1", models.UserPatch{Transcript: &models.Transcript{
		Program:  "MSCS",
		GPA:      3.7,
		Domestic: &domestic,
		CompletedCourses: []models.Course{
			{CourseID: "CS105", CourseName: "Programming Languages", Grade: "A", CreditsEarned: 3},
		},
	}})
	require.NoError(t, err)

	user, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "MSCS", user.Transcript.Program)
	require.Len(t, user.Transcript.CompletedCourses, 1)
	require.NotNil(t, user.Transcript.Domestic)
	assert.False(t, *user.Transcript.Domestic)

	// Returned profiles are copies
	user.Transcript.Program = "changed"
	again, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "MSCS", again.Transcript.Program)

	assert.ErrorIs(t, s.UpdateUser(ctx, "missing", models.UserPatch{}), ErrNotFound)
}

func TestMemoryStorage_IncrementLastK(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	newUser(t, s, "u1")

	for i := 0; i < 5; i++ {
		previous, err := s.IncrementLastK(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, i, previous)
	}

	user, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, user.LastK)

	_, err = s.IncrementLastK(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_SetPendingEscalation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	newUser(t, s, "u1")

	swapped, err := s.SetPendingEscalation(ctx, "u1", false, true, "thesis requirements")
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = s.SetPendingEscalation(ctx, "u1", false, true, "other")
	require.NoError(t, err)
	assert.False(t, swapped)

	user, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.PendingEscalation)
	assert.Equal(t, "thesis requirements", user.PendingQuestion)

	swapped, err = s.SetPendingEscalation(ctx, "u1", true, false, "")
	require.NoError(t, err)
	assert.True(t, swapped)

	_, err = s.SetPendingEscalation(ctx, "missing", false, true, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_CreateThreadsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.CreateThreads(ctx, models.NewThreadPair("m1", "a1", "alice")))

	// a1 already exists, so m2 must not be written either
	err := s.CreateThreads(ctx, models.NewThreadPair("m2", "a1", "bob"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	_, err = s.GetThread(ctx, "m2")
	assert.ErrorIs(t, err, ErrNotFound)

	link, err := s.GetThread(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "m1", link.ForwardThreadID)
	assert.False(t, link.ForwardHuman)
	assert.Equal(t, "alice", link.ForwardUsername)
}

func TestMemoryStorage_FAQ(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	first := &models.FAQEntry{Question: "How many credits?", Answer: "30", SuggestedQuestions: []string{"a"}}
	second := &models.FAQEntry{Question: "Thesis?", Answer: "Optional"}
	require.NoError(t, s.AddFAQ(ctx, first))
	require.NoError(t, s.AddFAQ(ctx, second))
	assert.Equal(t, 1, first.QuestionID)
	assert.Equal(t, 2, second.QuestionID)
	assert.NotEmpty(t, first.DocID)

	found, err := s.FindFAQByQuestion(ctx, "How many credits?")
	require.NoError(t, err)
	assert.Equal(t, "30", found.Answer)

	byID, err := s.GetFAQByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Thesis?", byID.Question)

	second.Answer = "Required for PhD"
	require.NoError(t, s.UpdateFAQ(ctx, second))

	require.NoError(t, s.DeleteFAQ(ctx, first.DocID))
	assert.ErrorIs(t, s.DeleteFAQ(ctx, first.DocID), ErrNotFound)

	list, err := s.ListFAQ(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Required for PhD", list[0].Answer)

	// Ids keep growing after a delete
	third := &models.FAQEntry{Question: "GPA?"}
	require.NoError(t, s.AddFAQ(ctx, third))
	assert.Equal(t, 3, third.QuestionID)
}

func TestMemoryStorage_ClaimMessage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	ok, err := s.ClaimMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimMessage(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStorage_ClaimMessageExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	clock := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	ok, err := s.ClaimMessage(ctx, "old")
	require.NoError(t, err)
	assert.True(t, ok)

	clock = clock.Add(ClaimRetention / 2)
	ok, err = s.ClaimMessage(ctx, "recent")
	require.NoError(t, err)
	assert.True(t, ok)

	clock = clock.Add(ClaimRetention/2 + time.Hour)
	ok, err = s.ClaimMessage(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NotContains(t, s.messages, "old")
	assert.Contains(t, s.messages, "recent")

	ok, err = s.ClaimMessage(ctx, "recent")
	require.NoError(t, err)
	assert.False(t, ok, "claims inside the retention window are still remembered")
}
