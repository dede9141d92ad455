package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/ashureev/lunch-picker/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes write transactions to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS places (
		place_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		price_level INTEGER,
		rating REAL,
		user_ratings_total INTEGER,
		types TEXT NOT NULL DEFAULT '',
		open_now INTEGER NOT NULL DEFAULT 0,
		hours_text TEXT,
		photo_ref TEXT,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_history (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		place_id TEXT NOT NULL,
		chosen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_history_user_time ON user_history(user_id, chosen_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withTx runs fn inside a write transaction, committing on success.
func (s *SQLiteStore) withTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return shared.RetryBusy(ctx, shared.DefaultRetryPolicy, name, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("%w (rollback error: %v)", err, rbErr)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

const venueColumns = `place_id, name, address, lat, lng, price_level, rating,
	user_ratings_total, types, open_now, hours_text, photo_ref, first_seen, last_seen`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVenue(row rowScanner) (*domain.Venue, error) {
	var v domain.Venue
	var priceLevel, ratingCount sql.NullInt64
	var rating sql.NullFloat64
	var hours, photo sql.NullString
	var types string
	var openNow int
	var firstSeen, lastSeen int64

	if err := row.Scan(
		&v.ID, &v.Name, &v.Address, &v.Lat, &v.Lng,
		&priceLevel, &rating, &ratingCount, &types, &openNow,
		&hours, &photo, &firstSeen, &lastSeen,
	); err != nil {
		return nil, err
	}

	if priceLevel.Valid {
		n := int(priceLevel.Int64)
		v.PriceLevel = &n
	}
	if rating.Valid {
		r := rating.Float64
		v.Rating = &r
	}
	if ratingCount.Valid {
		n := int(ratingCount.Int64)
		v.RatingCount = &n
	}
	if hours.Valid {
		v.HoursText = &hours.String
	}
	if photo.Valid {
		v.PhotoRef = &photo.String
	}
	v.Types = splitTypes(types)
	v.OpenNow = domain.OpenState(openNow)
	v.FirstSeenAt = time.Unix(firstSeen, 0)
	v.LastSeenAt = time.Unix(lastSeen, 0)
	return &v, nil
}

// Types are stored comma-joined so a tag can be matched with LIKE '%,tag,%'
// against ',' || types || ','.
func joinTypes(types []string) string {
	return strings.Join(types, ",")
}

func splitTypes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// GetVenue retrieves a venue by place ID.
func (s *SQLiteStore) GetVenue(ctx context.Context, id string) (*domain.Venue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+venueColumns+` FROM places WHERE place_id = ?`, id)
	v, err := scanVenue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan venue row: %w", err)
	}
	return v, nil
}

// UpsertVenue inserts a new venue or refreshes an existing one.
// first_seen is written only on insert; last_seen never moves backwards.
func (s *SQLiteStore) UpsertVenue(ctx context.Context, v *domain.Venue, now time.Time) (bool, error) {
	var inserted bool
	err := s.withTx(ctx, "upsert_venue", func(tx *sql.Tx) error {
		inserted = false

		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM places WHERE place_id = ?`, v.ID).Scan(&exists)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO places (`+venueColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				v.ID, v.Name, v.Address, v.Lat, v.Lng,
				nullableInt(v.PriceLevel), nullableFloat(v.Rating), nullableInt(v.RatingCount),
				joinTypes(v.Types), int(v.OpenNow),
				nullableString(v.HoursText), nullableString(v.PhotoRef),
				now.Unix(), now.Unix(),
			)
			if err != nil {
				return fmt.Errorf("insert venue: %w", err)
			}
			inserted = true
			return nil
		case err != nil:
			return fmt.Errorf("check venue: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE places SET
				name = ?,
				address = ?,
				lat = ?,
				lng = ?,
				price_level = COALESCE(?, price_level),
				rating = COALESCE(?, rating),
				user_ratings_total = COALESCE(?, user_ratings_total),
				types = ?,
				open_now = ?,
				hours_text = COALESCE(?, hours_text),
				photo_ref = COALESCE(?, photo_ref),
				last_seen = MAX(last_seen, ?)
			WHERE place_id = ?`,
			v.Name, v.Address, v.Lat, v.Lng,
			nullableInt(v.PriceLevel), nullableFloat(v.Rating), nullableInt(v.RatingCount),
			joinTypes(v.Types), int(v.OpenNow),
			nullableString(v.HoursText), nullableString(v.PhotoRef),
			now.Unix(), v.ID,
		)
		if err != nil {
			return fmt.Errorf("update venue: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// escapeLike escapes LIKE wildcards so user keywords match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchVenues applies the query predicates and returns rows in insertion order.
// Keyword and label matching use SQLite LIKE, which folds ASCII case only.
func (s *SQLiteStore) SearchVenues(ctx context.Context, q VenueQuery) ([]domain.Venue, error) {
	var cond []string
	var args []any

	if q.Keyword != "" {
		pattern := "%" + escapeLike(q.Keyword) + "%"
		cond = append(cond, `(name LIKE ? ESCAPE '\' OR address LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	switch {
	case q.FilterKey != "":
		cond = append(cond, `(',' || types || ',') LIKE ? ESCAPE '\'`)
		args = append(args, "%,"+escapeLike(q.FilterKey)+",%")
	case q.LabelFallback != "":
		pattern := "%" + escapeLike(q.LabelFallback) + "%"
		cond = append(cond, `(name LIKE ? ESCAPE '\' OR address LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	if q.MaxPrice != nil {
		cond = append(cond, `(price_level IS NOT NULL AND price_level <= ?)`)
		args = append(args, *q.MaxPrice)
	}

	if len(q.Exclude) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.Exclude)), ",")
		cond = append(cond, `place_id NOT IN (`+placeholders+`)`)
		for _, id := range q.Exclude {
			args = append(args, id)
		}
	}

	query := `SELECT ` + venueColumns + ` FROM places`
	if len(cond) > 0 {
		query += ` WHERE ` + strings.Join(cond, " AND ")
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query venues: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close venue rows", "error", closeErr)
		}
	}()

	venues := []domain.Venue{}
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan venue row: %w", err)
		}
		venues = append(venues, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate venues: %w", err)
	}
	return venues, nil
}

// CountVenues returns the number of known venues.
func (s *SQLiteStore) CountVenues(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM places`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count venues: %w", err)
	}
	return n, nil
}

// ApplyDailyChoice enforces a single choice per user per day by
// delete-then-insert inside one transaction.
func (s *SQLiteStore) ApplyDailyChoice(ctx context.Context, rec *domain.ChoiceRecord, dayStart, dayEnd time.Time) (ChoiceOutcome, error) {
	var outcome ChoiceOutcome
	err := s.withTx(ctx, "apply_daily_choice", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT place_id FROM user_history WHERE user_id = ? AND chosen_at >= ? AND chosen_at < ?`,
			rec.UserID, dayStart.Unix(), dayEnd.Unix())
		if err != nil {
			return fmt.Errorf("query day choices: %w", err)
		}
		var existing []string
		for rows.Next() {
			var placeID string
			if err := rows.Scan(&placeID); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan day choice: %w", err)
			}
			existing = append(existing, placeID)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("iterate day choices: %w", err)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("close day choices: %w", err)
		}

		for _, placeID := range existing {
			if placeID == rec.VenueID {
				outcome = ChoiceDuplicate
				return nil
			}
		}

		outcome = ChoiceCreated
		if len(existing) > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM user_history WHERE user_id = ? AND chosen_at >= ? AND chosen_at < ?`,
				rec.UserID, dayStart.Unix(), dayEnd.Unix()); err != nil {
				return fmt.Errorf("delete day choices: %w", err)
			}
			outcome = ChoiceReplaced
		}

		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_history (id, user_id, place_id, chosen_at) VALUES (?, ?, ?, ?)`,
			rec.ID, rec.UserID, rec.VenueID, rec.ChosenAt.Unix()); err != nil {
			return fmt.Errorf("insert choice: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// ChoicesSince lists a user's choices at or after since, oldest first.
func (s *SQLiteStore) ChoicesSince(ctx context.Context, userID string, since time.Time) ([]domain.ChoiceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, place_id, chosen_at FROM user_history
		 WHERE user_id = ? AND chosen_at >= ? ORDER BY chosen_at`,
		userID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query choices: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close choice rows", "error", closeErr)
		}
	}()

	var records []domain.ChoiceRecord
	for rows.Next() {
		var rec domain.ChoiceRecord
		var chosenAt int64
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.VenueID, &chosenAt); err != nil {
			return nil, fmt.Errorf("scan choice row: %w", err)
		}
		rec.ChosenAt = time.Unix(chosenAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate choices: %w", err)
	}
	return records, nil
}

// Ensure SQLiteStore implements Repository.
var _ Repository = (*SQLiteStore)(nil)
