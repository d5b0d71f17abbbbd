package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zefir/statki-go-backend/logger"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	sqlDB *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time keeps sqlite from returning SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrateSQLite(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	logger.Log.Info().Str("store", "sqlite").Str("path", path).Msg("SQLite store opened")
	return &SQLite{sqlDB: sqlDB}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) CreatePlayer(ctx context.Context, username string, passwordHash []byte) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO players (username, password_hash) VALUES (?, ?) ON CONFLICT (username) DO NOTHING`,
		username, passwordHash)
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserExists
	}
	return nil
}

func (s *SQLite) GetPlayer(ctx context.Context, username string) (Player, error) {
	var p Player
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT username, password_hash, games_played, games_won, session_code FROM players WHERE username = ?`,
		username).Scan(&p.Username, &p.PasswordHash, &p.GamesPlayed, &p.GamesWon, &p.SessionCode)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (s *SQLite) updatePlayer(ctx context.Context, what, query string, args ...any) error {
	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) SetSessionCode(ctx context.Context, username, code string) error {
	return s.updatePlayer(ctx, "set session code",
		`UPDATE players SET session_code = ? WHERE username = ?`, code, username)
}

func (s *SQLite) SetPasswordHash(ctx context.Context, username string, passwordHash []byte) error {
	return s.updatePlayer(ctx, "set password",
		`UPDATE players SET password_hash = ?, session_code = '' WHERE username = ?`, passwordHash, username)
}

func (s *SQLite) DeletePlayer(ctx context.Context, username string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM games WHERE player0 = ? OR player1 = ?`, username, username); err != nil {
		return fmt.Errorf("delete games of %s: %w", username, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM players WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLite) IncrementPlayed(ctx context.Context, username string) error {
	return s.updatePlayer(ctx, "increment played",
		`UPDATE players SET games_played = games_played + 1 WHERE username = ?`, username)
}

func (s *SQLite) IncrementWon(ctx context.Context, username string) error {
	return s.updatePlayer(ctx, "increment won",
		`UPDATE players SET games_won = games_won + 1 WHERE username = ?`, username)
}

func (s *SQLite) Ranking(ctx context.Context, limit int) ([]Player, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT username, games_played, games_won FROM players
		 ORDER BY games_won DESC, games_played ASC, username ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	defer rows.Close()

	var out []Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.Username, &p.GamesPlayed, &p.GamesWon); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveGame(ctx context.Context, rec GameRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("save game %s: invalid status %q", rec.ID, rec.Status)
	}
	snap, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO games (id, player0, player1, mode, status, snapshot, version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status,
		   snapshot = excluded.snapshot,
		   version = excluded.version,
		   updated_at = excluded.updated_at
		 WHERE games.version <= excluded.version`,
		rec.ID, rec.Player0, rec.Player1, int64(rec.Mode), string(rec.Status), string(snap), rec.Version, toMillis(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.ID, err)
	}
	return nil
}

const sqliteGameColumns = `id, player0, player1, mode, status, snapshot, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteGame(row rowScanner) (GameRecord, error) {
	var (
		rec     GameRecord
		mode    int64
		status  string
		snap    string
		updated int64
	)
	if err := row.Scan(&rec.ID, &rec.Player0, &rec.Player1, &mode, &status, &snap, &rec.Version, &updated); err != nil {
		return GameRecord{}, err
	}
	rec.Mode = uint16(mode)
	rec.Status = GameStatus(status)
	rec.UpdatedAt = fromMillis(updated)
	if err := json.Unmarshal([]byte(snap), &rec.Snapshot); err != nil {
		return GameRecord{}, fmt.Errorf("decode snapshot of %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (s *SQLite) LoadGame(ctx context.Context, id string) (GameRecord, error) {
	rec, err := scanSQLiteGame(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sqliteGameColumns+` FROM games WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return GameRecord{}, ErrNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("load game %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLite) FindUnfinished(ctx context.Context, a, b string) (GameRecord, error) {
	rec, err := scanSQLiteGame(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sqliteGameColumns+` FROM games
		 WHERE ((player0 = ? AND player1 = ?) OR (player0 = ? AND player1 = ?))
		   AND status IN ('suspended', 'playing')
		 ORDER BY updated_at DESC LIMIT 1`, a, b, b, a))
	if errors.Is(err, sql.ErrNoRows) {
		return GameRecord{}, ErrNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("find game %s/%s: %w", a, b, err)
	}
	return rec, nil
}

func (s *SQLite) FindByPlayer(ctx context.Context, username string) ([]GameRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+sqliteGameColumns+` FROM games
		 WHERE (player0 = ? OR player1 = ?) AND status IN ('suspended', 'playing')
		 ORDER BY updated_at DESC`, username, username)
	if err != nil {
		return nil, fmt.Errorf("games of %s: %w", username, err)
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		rec, err := scanSQLiteGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) SetStatus(ctx context.Context, id string, status GameStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set status %s: invalid status %q", id, status)
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE games SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
