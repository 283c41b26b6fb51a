package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the PostgreSQL Store, backed by a connection pool.
type DB struct {
	pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// Migrate applies the embedded PostgreSQL migrations in one transaction.
func (db *DB) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var current int
	err = tx.QueryRow(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("failed to init schema_version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, `UPDATE schema_version SET version = $1`, m.Version); err != nil {
			return fmt.Errorf("failed to update schema_version: %w", err)
		}
		current = m.Version
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	return nil
}

const pgDreamColumns = `id, owner_id, status, transcription, emotion, image_prompt, generated_image,
	error_message, phrase, phrase_date, personal_phrase, personal_phrase_date, created_at, updated_at`

// CreateDream inserts a new PENDING dream for the owner
func (db *DB) CreateDream(ctx context.Context, ownerID uuid.UUID) (*Dream, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO dreams (id, owner_id, status)
		 VALUES ($1, $2, 'PENDING')
		 RETURNING `+pgDreamColumns,
		uuid.New(), ownerID,
	)
	dream, err := scanPgDream(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create dream: %w", err)
	}
	return dream, nil
}

// GetDream retrieves a dream by ID
func (db *DB) GetDream(ctx context.Context, id uuid.UUID) (*Dream, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+pgDreamColumns+` FROM dreams WHERE id = $1`, id)
	dream, err := scanPgDream(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dream: %w", err)
	}
	return dream, nil
}

// ListDreams returns dreams matching filters, newest first
func (db *DB) ListDreams(ctx context.Context, filters DreamFilters) ([]Dream, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filters.OwnerID != uuid.Nil {
		add("owner_id = $%d", filters.OwnerID)
	}
	if filters.Status != "" {
		add("status = $%d", string(filters.Status))
	}
	if filters.Emotion != "" {
		add("emotion = $%d", string(filters.Emotion))
	}
	if filters.Day != nil {
		add("(created_at AT TIME ZONE 'UTC')::date = $%d", filters.Day.Time)
	}
	if !filters.Since.IsZero() {
		add("created_at >= $%d", filters.Since)
	}

	query := `SELECT ` + pgDreamColumns + ` FROM dreams`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dreams: %w", err)
	}
	defer rows.Close()

	var dreams []Dream
	for rows.Next() {
		dream, err := scanPgDream(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dream: %w", err)
		}
		dreams = append(dreams, *dream)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dreams: %w", err)
	}
	return dreams, nil
}

// MarkProcessing moves a PENDING dream to PROCESSING
func (db *DB) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return db.guardedExec(ctx, "mark dream processing",
		`UPDATE dreams SET status = 'PROCESSING', updated_at = NOW()
		 WHERE id = $1 AND status = 'PENDING'`, id)
}

// SetTranscription records the transcription of a PROCESSING dream
func (db *DB) SetTranscription(ctx context.Context, id uuid.UUID, text string) error {
	return db.guardedExec(ctx, "set transcription",
		`UPDATE dreams SET transcription = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING'`, id, text)
}

// SetEmotion records the dominant emotion of a PROCESSING dream
func (db *DB) SetEmotion(ctx context.Context, id uuid.UUID, emotion Emotion) error {
	return db.guardedExec(ctx, "set emotion",
		`UPDATE dreams SET emotion = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING'`, id, string(emotion))
}

// SetImagePrompt records the image prompt of a PROCESSING dream
func (db *DB) SetImagePrompt(ctx context.Context, id uuid.UUID, prompt string) error {
	return db.guardedExec(ctx, "set image prompt",
		`UPDATE dreams SET image_prompt = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING'`, id, prompt)
}

// SetGeneratedImage records the stored image path of a PROCESSING dream
func (db *DB) SetGeneratedImage(ctx context.Context, id uuid.UUID, path string) error {
	return db.guardedExec(ctx, "set generated image",
		`UPDATE dreams SET generated_image = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING'`, id, path)
}

// MarkCompleted finalizes a PROCESSING dream that has an image
func (db *DB) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return db.guardedExec(ctx, "mark dream completed",
		`UPDATE dreams SET status = 'COMPLETED', error_message = '', updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING' AND generated_image IS NOT NULL`, id)
}

// MarkFailed moves a non-terminal dream to FAILED with a reason
func (db *DB) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return db.guardedExec(ctx, "mark dream failed",
		`UPDATE dreams SET status = 'FAILED', error_message = $2, generated_image = NULL, updated_at = NOW()
		 WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`, id, failureMessage(message))
}

// SetMessages writes the daily and personal messages in one statement
func (db *DB) SetMessages(ctx context.Context, id uuid.UUID, msgs Messages) error {
	var personalDate any
	if msgs.PersonalPhrase != "" {
		personalDate = msgs.PersonalPhraseDate.Time
	}
	var phraseDate any
	if msgs.Phrase != "" {
		phraseDate = msgs.PhraseDate.Time
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE dreams
		 SET phrase = $2, phrase_date = $3, personal_phrase = $4, personal_phrase_date = $5, updated_at = NOW()
		 WHERE id = $1`,
		id, msgs.Phrase, phraseDate, msgs.PersonalPhrase, personalDate,
	)
	if err != nil {
		return fmt.Errorf("failed to set messages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailStale marks dreams stuck in PROCESSING since before olderThan as FAILED
func (db *DB) FailStale(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE dreams SET status = 'FAILED', error_message = $2, generated_image = NULL, updated_at = NOW()
		 WHERE status = 'PROCESSING' AND updated_at < $1`,
		olderThan, failureMessage(message),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale dreams: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetProfile retrieves a user profile
func (db *DB) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var (
		p     Profile
		birth *time.Time
	)
	err := db.pool.QueryRow(ctx,
		`SELECT user_id, display_name, birth_date, zodiac_sign, believes_in_astrology, updated_at
		 FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.DisplayName, &birth, &p.ZodiacSign, &p.BelievesInAstrology, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if birth != nil {
		p.BirthDate = &Date{Time: *birth}
	}
	return &p, nil
}

// UpsertProfile creates or replaces a user profile
func (db *DB) UpsertProfile(ctx context.Context, p Profile) error {
	var birth any
	if p.BirthDate != nil && !p.BirthDate.IsZero() {
		birth = p.BirthDate.Time
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, display_name, birth_date, zodiac_sign, believes_in_astrology)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   birth_date = EXCLUDED.birth_date,
		   zodiac_sign = EXCLUDED.zodiac_sign,
		   believes_in_astrology = EXCLUDED.believes_in_astrology,
		   updated_at = NOW()`,
		p.UserID, p.DisplayName, birth, p.ZodiacSign, p.BelievesInAstrology,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (db *DB) guardedExec(ctx context.Context, op, query string, args ...any) error {
	tag, err := db.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return guardResult(tag.RowsAffected(), func() (bool, error) {
		var exists bool
		if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM dreams WHERE id = $1)`, args[0]).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to %s: %w", op, err)
		}
		return exists, nil
	})
}

func scanPgDream(row pgx.Row) (*Dream, error) {
	var (
		d                        Dream
		status, emotion          string
		phraseDate, personalDate *time.Time
	)
	err := row.Scan(
		&d.ID, &d.OwnerID, &status, &d.Transcription, &emotion, &d.ImagePrompt, &d.GeneratedImage,
		&d.ErrorMessage, &d.Phrase, &phraseDate, &d.PersonalPhrase, &personalDate, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = Status(status)
	d.Emotion = Emotion(emotion)
	if phraseDate != nil {
		d.PhraseDate = &Date{Time: *phraseDate}
	}
	if personalDate != nil {
		d.PersonalPhraseDate = &Date{Time: *personalDate}
	}
	return &d, nil
}
