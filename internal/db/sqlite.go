package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timestampLayout is fixed-width so stored UTC timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteDB is the SQLite Store for single-node deployments and tests.
type SQLiteDB struct {
	conn *sql.DB
	now  func() time.Time
}

var _ Store = (*SQLiteDB)(nil)

// OpenSQLite opens (creating if needed) the SQLite database at path.
// ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDB, error) {
	var dsn string
	switch {
	case path == ":memory:":
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	case strings.HasPrefix(path, "file:"):
		dsn = path
	default:
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLiteDB{conn: conn, now: time.Now}, nil
}

// Close closes the database handle
func (db *SQLiteDB) Close() error {
	return db.conn.Close()
}

// Migrate applies the embedded SQLite migrations in one transaction.
func (db *SQLiteDB) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var current int
	err = tx.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("failed to init schema_version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, m.Version); err != nil {
			return fmt.Errorf("failed to update schema_version: %w", err)
		}
		current = m.Version
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	return nil
}

const sqliteDreamColumns = `id, owner_id, status, transcription, emotion, image_prompt, generated_image,
	error_message, phrase, phrase_date, personal_phrase, personal_phrase_date, created_at, updated_at`

func (db *SQLiteDB) timestamp() string {
	return db.now().UTC().Format(timestampLayout)
}

// CreateDream inserts a new PENDING dream for the owner
func (db *SQLiteDB) CreateDream(ctx context.Context, ownerID uuid.UUID) (*Dream, error) {
	id := uuid.New()
	ts := db.timestamp()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO dreams (id, owner_id, status, created_at, updated_at) VALUES (?, ?, 'PENDING', ?, ?)`,
		id.String(), ownerID.String(), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dream: %w", err)
	}
	return db.GetDream(ctx, id)
}

// GetDream retrieves a dream by ID
func (db *SQLiteDB) GetDream(ctx context.Context, id uuid.UUID) (*Dream, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+sqliteDreamColumns+` FROM dreams WHERE id = ?`, id.String())
	dream, err := scanSQLiteDream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dream: %w", err)
	}
	return dream, nil
}

// ListDreams returns dreams matching filters, newest first
func (db *SQLiteDB) ListDreams(ctx context.Context, filters DreamFilters) ([]Dream, error) {
	var (
		where []string
		args  []any
	)
	if filters.OwnerID != uuid.Nil {
		where = append(where, "owner_id = ?")
		args = append(args, filters.OwnerID.String())
	}
	if filters.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filters.Status))
	}
	if filters.Emotion != "" {
		where = append(where, "emotion = ?")
		args = append(args, string(filters.Emotion))
	}
	if filters.Day != nil {
		where = append(where, "substr(created_at, 1, 10) = ?")
		args = append(args, filters.Day.String())
	}
	if !filters.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filters.Since.UTC().Format(timestampLayout))
	}

	query := `SELECT ` + sqliteDreamColumns + ` FROM dreams`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dreams: %w", err)
	}
	defer rows.Close()

	var dreams []Dream
	for rows.Next() {
		dream, err := scanSQLiteDream(rows)
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
func (db *SQLiteDB) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return db.guardedExec(ctx, "mark dream processing", id,
		`UPDATE dreams SET status = 'PROCESSING', updated_at = ? WHERE id = ? AND status = 'PENDING'`,
		db.timestamp(), id.String())
}

// SetTranscription records the transcription of a PROCESSING dream
func (db *SQLiteDB) SetTranscription(ctx context.Context, id uuid.UUID, text string) error {
	return db.guardedExec(ctx, "set transcription", id,
		`UPDATE dreams SET transcription = ?, updated_at = ? WHERE id = ? AND status = 'PROCESSING'`,
		text, db.timestamp(), id.String())
}

// SetEmotion records the dominant emotion of a PROCESSING dream
func (db *SQLiteDB) SetEmotion(ctx context.Context, id uuid.UUID, emotion Emotion) error {
	return db.guardedExec(ctx, "set emotion", id,
		`UPDATE dreams SET emotion = ?, updated_at = ? WHERE id = ? AND status = 'PROCESSING'`,
		string(emotion), db.timestamp(), id.String())
}

// SetImagePrompt records the image prompt of a PROCESSING dream
func (db *SQLiteDB) SetImagePrompt(ctx context.Context, id uuid.UUID, prompt string) error {
	return db.guardedExec(ctx, "set image prompt", id,
		`UPDATE dreams SET image_prompt = ?, updated_at = ? WHERE id = ? AND status = 'PROCESSING'`,
		prompt, db.timestamp(), id.String())
}

// SetGeneratedImage records the stored image path of a PROCESSING dream
func (db *SQLiteDB) SetGeneratedImage(ctx context.Context, id uuid.UUID, path string) error {
	return db.guardedExec(ctx, "set generated image", id,
		`UPDATE dreams SET generated_image = ?, updated_at = ? WHERE id = ? AND status = 'PROCESSING'`,
		path, db.timestamp(), id.String())
}

// MarkCompleted finalizes a PROCESSING dream that has an image
func (db *SQLiteDB) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return db.guardedExec(ctx, "mark dream completed", id,
		`UPDATE dreams SET status = 'COMPLETED', error_message = '', updated_at = ?
		 WHERE id = ? AND status = 'PROCESSING' AND generated_image IS NOT NULL`,
		db.timestamp(), id.String())
}

// MarkFailed moves a non-terminal dream to FAILED with a reason
func (db *SQLiteDB) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return db.guardedExec(ctx, "mark dream failed", id,
		`UPDATE dreams SET status = 'FAILED', error_message = ?, generated_image = NULL, updated_at = ?
		 WHERE id = ? AND status IN ('PENDING', 'PROCESSING')`,
		failureMessage(message), db.timestamp(), id.String())
}

// SetMessages writes the daily and personal messages in one statement
func (db *SQLiteDB) SetMessages(ctx context.Context, id uuid.UUID, msgs Messages) error {
	var phraseDate, personalDate any
	if msgs.Phrase != "" {
		phraseDate = msgs.PhraseDate.String()
	}
	if msgs.PersonalPhrase != "" {
		personalDate = msgs.PersonalPhraseDate.String()
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE dreams
		 SET phrase = ?, phrase_date = ?, personal_phrase = ?, personal_phrase_date = ?, updated_at = ?
		 WHERE id = ?`,
		msgs.Phrase, phraseDate, msgs.PersonalPhrase, personalDate, db.timestamp(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to set messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set messages: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailStale marks dreams stuck in PROCESSING since before olderThan as FAILED
func (db *SQLiteDB) FailStale(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE dreams SET status = 'FAILED', error_message = ?, generated_image = NULL, updated_at = ?
		 WHERE status = 'PROCESSING' AND updated_at < ?`,
		failureMessage(message), db.timestamp(), olderThan.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale dreams: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale dreams: %w", err)
	}
	return n, nil
}

// GetProfile retrieves a user profile
func (db *SQLiteDB) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var (
		p         Profile
		birth     Date
		birthNull sql.NullString
		updated   string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, display_name, birth_date, zodiac_sign, believes_in_astrology, updated_at
		 FROM user_profiles WHERE user_id = ?`, userID.String(),
	).Scan(&p.UserID, &p.DisplayName, &birthNull, &p.ZodiacSign, &p.BelievesInAstrology, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if birthNull.Valid && birthNull.String != "" {
		if err := birth.Scan(birthNull.String); err != nil {
			return nil, fmt.Errorf("failed to parse birth date: %w", err)
		}
		p.BirthDate = &birth
	}
	if p.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile creates or replaces a user profile
func (db *SQLiteDB) UpsertProfile(ctx context.Context, p Profile) error {
	var birth any
	if p.BirthDate != nil && !p.BirthDate.IsZero() {
		birth = p.BirthDate.String()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, display_name, birth_date, zodiac_sign, believes_in_astrology, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   birth_date = excluded.birth_date,
		   zodiac_sign = excluded.zodiac_sign,
		   believes_in_astrology = excluded.believes_in_astrology,
		   updated_at = excluded.updated_at`,
		p.UserID.String(), p.DisplayName, birth, p.ZodiacSign, p.BelievesInAstrology, db.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (db *SQLiteDB) guardedExec(ctx context.Context, op string, id uuid.UUID, query string, args ...any) error {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return guardResult(n, func() (bool, error) {
		var count int
		if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM dreams WHERE id = ?`, id.String()).Scan(&count); err != nil {
			return false, fmt.Errorf("failed to %s: %w", op, err)
		}
		return count > 0, nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDream(row rowScanner) (*Dream, error) {
	var (
		d                        Dream
		status, emotion          string
		image                    sql.NullString
		phraseDate, personalDate sql.NullString
		created, updated         string
	)
	err := row.Scan(
		&d.ID, &d.OwnerID, &status, &d.Transcription, &emotion, &d.ImagePrompt, &image,
		&d.ErrorMessage, &d.Phrase, &phraseDate, &d.PersonalPhrase, &personalDate, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	d.Status = Status(status)
	d.Emotion = Emotion(emotion)
	if image.Valid {
		path := image.String
		d.GeneratedImage = &path
	}
	if d.PhraseDate, err = nullableDate(phraseDate); err != nil {
		return nil, err
	}
	if d.PersonalPhraseDate, err = nullableDate(personalDate); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, err
	}
	return &d, nil
}

func nullableDate(s sql.NullString) (*Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var d Date
	if err := d.Scan(s.String); err != nil {
		return nil, err
	}
	return &d, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
