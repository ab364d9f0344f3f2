package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/advising-bot/internal/models"
)

type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[string]*models.UserProfile
	threads  map[string]models.ThreadLink
	faqs     map[string]*models.FAQEntry
	messages map[string]time.Time

	now        func() time.Time
	lastPruned time.Time
}

const claimPruneInterval = time.Hour

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]*models.UserProfile),
		threads:  make(map[string]models.ThreadLink),
		faqs:     make(map[string]*models.FAQEntry),
		messages: make(map[string]time.Time),
		now:      time.Now,
	}
}

// User methods
func (s *MemoryStorage) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, ErrNotFound
	}
	return copyProfile(user), nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, profile *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[profile.UserID]; exists {
		return ErrAlreadyExists
	}

	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	s.users[profile.UserID] = copyProfile(profile)
	return nil
}

func (s *MemoryStorage) UpdateUser(ctx context.Context, userID string, patch models.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrNotFound
	}

	if patch.Username != nil {
		user.Username = *patch.Username
	}
	if patch.Transcript != nil {
		user.Transcript = copyTranscript(*patch.Transcript)
	}
	user.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) IncrementLastK(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return 0, ErrNotFound
	}

	previous := user.LastK
	user.LastK++
	user.UpdatedAt = time.Now()
	return previous, nil
}

func (s *MemoryStorage) SetPendingEscalation(ctx context.Context, userID string, from, to bool, question string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return false, ErrNotFound
	}
	if user.PendingEscalation != from {
		return false, nil
	}

	user.PendingEscalation = to
	user.PendingQuestion = question
	user.UpdatedAt = time.Now()
	return true, nil
}

// Thread methods
func (s *MemoryStorage) GetThread(ctx context.Context, threadID string) (*models.ThreadLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, exists := s.threads[threadID]
	if !exists {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (s *MemoryStorage) CreateThreads(ctx context.Context, pair [2]models.ThreadLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check both keys before writing either
	for _, link := range pair {
		if _, exists := s.threads[link.ThreadID]; exists {
			return ErrAlreadyExists
		}
	}
	if pair[0].ThreadID == pair[1].ThreadID {
		return ErrAlreadyExists
	}

	for _, link := range pair {
		s.threads[link.ThreadID] = link
	}
	return nil
}

// FAQ methods
func (s *MemoryStorage) ListFAQ(ctx context.Context) ([]*models.FAQEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*models.FAQEntry, 0, len(s.faqs))
	for _, entry := range s.faqs {
		entries = append(entries, copyFAQ(entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].QuestionID < entries[j].QuestionID
	})
	return entries, nil
}

func (s *MemoryStorage) GetFAQByID(ctx context.Context, questionID int) (*models.FAQEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.faqs {
		if entry.QuestionID == questionID {
			return copyFAQ(entry), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) FindFAQByQuestion(ctx context.Context, question string) (*models.FAQEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.faqs {
		if entry.Question == question {
			return copyFAQ(entry), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) AddFAQ(ctx context.Context, entry *models.FAQEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	highest := 0
	for _, existing := range s.faqs {
		if existing.QuestionID > highest {
			highest = existing.QuestionID
		}
	}

	entry.DocID = uuid.New().String()
	entry.QuestionID = highest + 1
	s.faqs[entry.DocID] = copyFAQ(entry)
	return nil
}

func (s *MemoryStorage) UpdateFAQ(ctx context.Context, entry *models.FAQEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.faqs[entry.DocID]; !exists {
		return ErrNotFound
	}
	s.faqs[entry.DocID] = copyFAQ(entry)
	return nil
}

func (s *MemoryStorage) DeleteFAQ(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.faqs[docID]; !exists {
		return ErrNotFound
	}
	delete(s.faqs, docID)
	return nil
}

func (s *MemoryStorage) ClaimMessage(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastPruned) >= claimPruneInterval {
		for id, claimedAt := range s.messages {
			if now.Sub(claimedAt) > ClaimRetention {
				delete(s.messages, id)
			}
		}
		s.lastPruned = now
	}

	if _, exists := s.messages[messageID]; exists {
		return false, nil
	}
	s.messages[messageID] = now
	return true, nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func copyProfile(p *models.UserProfile) *models.UserProfile {
	c := *p
	c.Transcript = copyTranscript(p.Transcript)
	return &c
}

func copyTranscript(t models.Transcript) models.Transcript {
	c := t
	if t.CompletedCourses != nil {
		c.CompletedCourses = append([]models.Course(nil), t.CompletedCourses...)
	}
	if t.Domestic != nil {
		d := *t.Domestic
		c.Domestic = &d
	}
	return c
}

func copyFAQ(e *models.FAQEntry) *models.FAQEntry {
	c := *e
	c.SuggestedQuestions = append([]string(nil), e.SuggestedQuestions...)
	return &c
}
