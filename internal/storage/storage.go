package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/advising-bot/internal/models"
)

var (
	// ErrNotFound is returned when a user, thread or FAQ entry does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when inserting a record whose key is taken
	ErrAlreadyExists = errors.New("already exists")
)

// ClaimRetention bounds how long a claimed message id is remembered. It is
// far longer than any webhook redelivery window.
const ClaimRetention = 7 * 24 * time.Hour

type Storage interface {
	UserStorage
	ThreadStorage
	FAQStorage

	// ClaimMessage records an inbound message id. It reports false when the
	// id was already claimed by an earlier delivery. Claims older than
	// ClaimRetention are forgotten.
	ClaimMessage(ctx context.Context, messageID string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

type UserStorage interface {
	GetUser(ctx context.Context, userID string) (*models.UserProfile, error)
	CreateUser(ctx context.Context, profile *models.UserProfile) error
	UpdateUser(ctx context.Context, userID string, patch models.UserPatch) error

	// IncrementLastK atomically bumps the interaction counter and returns
	// the value it had before the increment.
	IncrementLastK(ctx context.Context, userID string) (int, error)

	// SetPendingEscalation flips the pending flag from `from` to `to` only if
	// it currently equals `from`, storing question alongside it. It reports
	// whether the swap happened.
	SetPendingEscalation(ctx context.Context, userID string, from, to bool, question string) (bool, error)
}

type ThreadStorage interface {
	GetThread(ctx context.Context, threadID string) (*models.ThreadLink, error)

	// CreateThreads inserts both links of an escalation or neither.
	CreateThreads(ctx context.Context, pair [2]models.ThreadLink) error
}

type FAQStorage interface {
	ListFAQ(ctx context.Context) ([]*models.FAQEntry, error)
	GetFAQByID(ctx context.Context, questionID int) (*models.FAQEntry, error)
	FindFAQByQuestion(ctx context.Context, question string) (*models.FAQEntry, error)

	// AddFAQ assigns the entry a new DocID and the next question id.
	AddFAQ(ctx context.Context, entry *models.FAQEntry) error
	UpdateFAQ(ctx context.Context, entry *models.FAQEntry) error
	DeleteFAQ(ctx context.Context, docID string) error
}
