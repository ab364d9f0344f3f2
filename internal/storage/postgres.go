package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/xaenox/advising-bot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

const uniqueViolation = "23505"

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))

	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := `
		SELECT user_id, username, last_k, transcript, pending_escalation, pending_question, created_at, updated_at
		FROM users
		WHERE user_id = $1`

	var (
		user       models.UserProfile
		transcript []byte
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID,
		&user.Username,
		&user.LastK,
		&transcript,
		&user.PendingEscalation,
		&user.PendingQuestion,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}

	if err := json.Unmarshal(transcript, &user.Transcript); err != nil {
		return nil, fmt.Errorf("error decoding transcript: %w", err)
	}

	return &user, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, profile *models.UserProfile) error {
	transcript, err := json.Marshal(profile.Transcript)
	if err != nil {
		return fmt.Errorf("error encoding transcript: %w", err)
	}

	query := `
		INSERT INTO users (user_id, username, last_k, transcript, pending_escalation, pending_question)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query,
		profile.UserID,
		profile.Username,
		profile.LastK,
		string(transcript),
		profile.PendingEscalation,
		profile.PendingQuestion,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}

	return nil
}

func (s *PostgresStorage) UpdateUser(ctx context.Context, userID string, patch models.UserPatch) error {
	var transcript []byte
	if patch.Transcript != nil {
		encoded, err := json.Marshal(patch.Transcript)
		if err != nil {
			return fmt.Errorf("error encoding transcript: %w", err)
		}
		transcript = encoded
	}

	query := `
		UPDATE users
		SET username = COALESCE($2, username),
		    transcript = COALESCE($3::jsonb, transcript),
		    updated_at = NOW()
		WHERE user_id = $1`

	result, err := s.db.ExecContext(ctx, query, userID, patch.Username, nullableJSON(transcript))
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}

	return expectRow(result)
}

func (s *PostgresStorage) IncrementLastK(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE users
		SET last_k = last_k + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING last_k - 1`

	var previous int
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("error incrementing last_k: %w", err)
	}

	return previous, nil
}

func (s *PostgresStorage) SetPendingEscalation(ctx context.Context, userID string, from, to bool, question string) (bool, error) {
	query := `
		UPDATE users
		SET pending_escalation = $3, pending_question = $4, updated_at = NOW()
		WHERE user_id = $1 AND pending_escalation = $2`

	result, err := s.db.ExecContext(ctx, query, userID, from, to, question)
	if err != nil {
		return false, fmt.Errorf("error updating pending escalation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}
	if rows == 1 {
		return true, nil
	}

	// Distinguish a lost swap from a missing user
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking user: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *PostgresStorage) GetThread(ctx context.Context, threadID string) (*models.ThreadLink, error) {
	query := `
		SELECT thread_id, forward_thread_id, forward_human, forward_username, created_at
		FROM threads
		WHERE thread_id = $1`

	var link models.ThreadLink
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&link.ThreadID,
		&link.ForwardThreadID,
		&link.ForwardHuman,
		&link.ForwardUsername,
		&link.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying thread: %w", err)
	}

	return &link, nil
}

func (s *PostgresStorage) CreateThreads(ctx context.Context, pair [2]models.ThreadLink) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO threads (thread_id, forward_thread_id, forward_human, forward_username, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	for _, link := range pair {
		_, err := tx.ExecContext(ctx, query,
			link.ThreadID,
			link.ForwardThreadID,
			link.ForwardHuman,
			link.ForwardUsername,
			link.CreatedAt,
		)
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("error creating thread link %s: %w", link.ThreadID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing thread links: %w", err)
	}

	return nil
}

func (s *PostgresStorage) ListFAQ(ctx context.Context) ([]*models.FAQEntry, error) {
	query := `
		SELECT doc_id, question_id, question, answer, suggested_questions
		FROM faqs
		ORDER BY question_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying faqs: %w", err)
	}
	defer rows.Close()

	var entries []*models.FAQEntry
	for rows.Next() {
		entry := &models.FAQEntry{}
		err := rows.Scan(
			&entry.DocID,
			&entry.QuestionID,
			&entry.Question,
			&entry.Answer,
			pq.Array(&entry.SuggestedQuestions),
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning faq: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating faqs: %w", err)
	}

	return entries, nil
}

func (s *PostgresStorage) GetFAQByID(ctx context.Context, questionID int) (*models.FAQEntry, error) {
	return s.getFAQ(ctx, `WHERE question_id = $1`, questionID)
}

func (s *PostgresStorage) FindFAQByQuestion(ctx context.Context, question string) (*models.FAQEntry, error) {
	return s.getFAQ(ctx, `WHERE question = $1 ORDER BY question_id LIMIT 1`, question)
}

func (s *PostgresStorage) getFAQ(ctx context.Context, where string, arg any) (*models.FAQEntry, error) {
	query := `SELECT doc_id, question_id, question, answer, suggested_questions FROM faqs ` + where

	entry := &models.FAQEntry{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&entry.DocID,
		&entry.QuestionID,
		&entry.Question,
		&entry.Answer,
		pq.Array(&entry.SuggestedQuestions),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying faq: %w", err)
	}

	return entry, nil
}

func (s *PostgresStorage) AddFAQ(ctx context.Context, entry *models.FAQEntry) error {
	entry.DocID = uuid.New().String()

	query := `
		INSERT INTO faqs (doc_id, question_id, question, answer, suggested_questions)
		SELECT $1::text, COALESCE(MAX(question_id), 0) + 1, $2::text, $3::text, $4::text[] FROM faqs
		RETURNING question_id`

	err := s.db.QueryRowContext(ctx, query,
		entry.DocID,
		entry.Question,
		entry.Answer,
		textArray(entry.SuggestedQuestions),
	).Scan(&entry.QuestionID)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("error creating faq: %w", err)
	}

	return nil
}

// textArray binds a nil slice as an empty array, since pq sends nil as NULL
func textArray(values []string) any {
	if values == nil {
		values = []string{}
	}
	return pq.Array(values)
}

func (s *PostgresStorage) UpdateFAQ(ctx context.Context, entry *models.FAQEntry) error {
	query := `
		UPDATE faqs
		SET question = $2, answer = $3, question_id = $4, suggested_questions = $5
		WHERE doc_id = $1`

	result, err := s.db.ExecContext(ctx, query,
		entry.DocID,
		entry.Question,
		entry.Answer,
		entry.QuestionID,
		textArray(entry.SuggestedQuestions),
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("error updating faq: %w", err)
	}

	return expectRow(result)
}

func (s *PostgresStorage) DeleteFAQ(ctx context.Context, docID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM faqs WHERE doc_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("error deleting faq: %w", err)
	}

	return expectRow(result)
}

func (s *PostgresStorage) ClaimMessage(ctx context.Context, messageID string) (bool, error) {
	prune := `DELETE FROM processed_messages WHERE received_at < NOW() - make_interval(secs => $1::double precision)`
	if _, err := s.db.ExecContext(ctx, prune, ClaimRetention.Seconds()); err != nil {
		return false, fmt.Errorf("error pruning claimed messages: %w", err)
	}

	query := `
		INSERT INTO processed_messages (message_id)
		VALUES ($1)
		ON CONFLICT (message_id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query, messageID)
	if err != nil {
		return false, fmt.Errorf("error claiming message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error getting rows affected: %w", err)
	}

	return rows == 1, nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
