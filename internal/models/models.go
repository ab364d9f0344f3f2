package models

import "time"

// UserProfile represents a student talking to the advising bot
type UserProfile struct {
	UserID            string     `json:"user_id"`
	Username          string     `json:"username"`
	LastK             int        `json:"last_k"`
	Transcript        Transcript `json:"transcript"`
	PendingEscalation bool       `json:"pending_escalation"`
	PendingQuestion   string     `json:"pending_question,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Transcript holds the optional academic details a student chose to share
type Transcript struct {
	Program          string   `json:"program"`
	CompletedCourses []Course `json:"completed_courses"`
	CreditsEarned    float64  `json:"credits_earned"`
	GPA              float64  `json:"GPA"`
	Domestic         *bool    `json:"domestic,omitempty"`
}

// Course is a single completed course on a transcript
type Course struct {
	CourseID      string  `json:"course_id"`
	CourseName    string  `json:"course_name"`
	Grade         string  `json:"grade"`
	CreditsEarned float64 `json:"credits_earned"`
}

// UserPatch lists the profile fields that may be changed after creation.
// Nil fields are left untouched.
type UserPatch struct {
	Username   *string     `json:"username,omitempty"`
	Transcript *Transcript `json:"transcript,omitempty"`
}

// ThreadLink routes messages posted in one thread to its counterpart on the
// other side of an escalation
type ThreadLink struct {
	ThreadID        string    `json:"thread_id"`
	ForwardThreadID string    `json:"forward_thread_id"`
	ForwardHuman    bool      `json:"forward_human"`
	ForwardUsername string    `json:"forward_username,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewThreadPair builds the two mirror-image links created at escalation time.
// The first link lives on the student side and forwards to the advisor, the
// second lives on the advisor side and forwards back to username.
func NewThreadPair(studentMsgID, advisorMsgID, username string) [2]ThreadLink {
	now := time.Now()
	return [2]ThreadLink{
		{
			ThreadID:        studentMsgID,
			ForwardThreadID: advisorMsgID,
			ForwardHuman:    true,
			CreatedAt:       now,
		},
		{
			ThreadID:        advisorMsgID,
			ForwardThreadID: studentMsgID,
			ForwardHuman:    false,
			ForwardUsername: username,
			CreatedAt:       now,
		},
	}
}

// FAQEntry is a curated question with a cached answer
type FAQEntry struct {
	DocID              string   `json:"doc_id"`
	QuestionID         int      `json:"question_id"`
	Question           string   `json:"question"`
	Answer             string   `json:"answer"`
	SuggestedQuestions []string `json:"suggestedQuestions"`
}
