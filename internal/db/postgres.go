package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zefir/statki-go-backend/logger"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, uri string) (*Postgres, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Log.Info().Str("store", "postgres").Msg("PostgreSQL connection successfully established")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
		logger.Log.Info().Msg("PostgreSQL connection pool closed")
	}
	return nil
}

func (p *Postgres) CreatePlayer(ctx context.Context, username string, passwordHash []byte) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO players (username, password_hash) VALUES ($1, $2) ON CONFLICT (username) DO NOTHING`,
		username, passwordHash)
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserExists
	}
	return nil
}

func (p *Postgres) GetPlayer(ctx context.Context, username string) (Player, error) {
	var pl Player
	err := p.pool.QueryRow(ctx,
		`SELECT username, password_hash, games_played, games_won, session_code FROM players WHERE username = $1`,
		username).Scan(&pl.Username, &pl.PasswordHash, &pl.GamesPlayed, &pl.GamesWon, &pl.SessionCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, fmt.Errorf("get player: %w", err)
	}
	return pl, nil
}

func (p *Postgres) updatePlayer(ctx context.Context, what, query string, args ...any) error {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetSessionCode(ctx context.Context, username, code string) error {
	return p.updatePlayer(ctx, "set session code",
		`UPDATE players SET session_code = $2 WHERE username = $1`, username, code)
}

func (p *Postgres) SetPasswordHash(ctx context.Context, username string, passwordHash []byte) error {
	return p.updatePlayer(ctx, "set password",
		`UPDATE players SET password_hash = $2, session_code = '' WHERE username = $1`, username, passwordHash)
}

func (p *Postgres) DeletePlayer(ctx context.Context, username string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM games WHERE player0 = $1 OR player1 = $1`, username); err != nil {
		return fmt.Errorf("delete games of %s: %w", username, err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM players WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (p *Postgres) IncrementPlayed(ctx context.Context, username string) error {
	return p.updatePlayer(ctx, "increment played",
		`UPDATE players SET games_played = games_played + 1 WHERE username = $1`, username)
}

func (p *Postgres) IncrementWon(ctx context.Context, username string) error {
	return p.updatePlayer(ctx, "increment won",
		`UPDATE players SET games_won = games_won + 1 WHERE username = $1`, username)
}

func (p *Postgres) Ranking(ctx context.Context, limit int) ([]Player, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT username, games_played, games_won FROM players
		 ORDER BY games_won DESC, games_played ASC, username ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}
	defer rows.Close()

	var out []Player
	for rows.Next() {
		var pl Player
		if err := rows.Scan(&pl.Username, &pl.GamesPlayed, &pl.GamesWon); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveGame(ctx context.Context, rec GameRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("save game %s: invalid status %q", rec.ID, rec.Status)
	}
	snap, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO games (id, player0, player1, mode, status, snapshot, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   snapshot = EXCLUDED.snapshot,
		   version = EXCLUDED.version,
		   updated_at = EXCLUDED.updated_at
		 WHERE games.version <= EXCLUDED.version`,
		rec.ID, rec.Player0, rec.Player1, int32(rec.Mode), string(rec.Status), snap, rec.Version, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.ID, err)
	}
	return nil
}

const pgGameColumns = `id, player0, player1, mode, status, snapshot, version, updated_at`

func scanPgGame(row pgx.Row) (GameRecord, error) {
	var (
		rec    GameRecord
		mode   int32
		status string
		snap   []byte
	)
	if err := row.Scan(&rec.ID, &rec.Player0, &rec.Player1, &mode, &status, &snap, &rec.Version, &rec.UpdatedAt); err != nil {
		return GameRecord{}, err
	}
	rec.Mode = uint16(mode)
	rec.Status = GameStatus(status)
	if err := json.Unmarshal(snap, &rec.Snapshot); err != nil {
		return GameRecord{}, fmt.Errorf("decode snapshot of %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (p *Postgres) LoadGame(ctx context.Context, id string) (GameRecord, error) {
	rec, err := scanPgGame(p.pool.QueryRow(ctx, `SELECT `+pgGameColumns+` FROM games WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return GameRecord{}, ErrNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("load game %s: %w", id, err)
	}
	return rec, nil
}

func (p *Postgres) FindUnfinished(ctx context.Context, a, b string) (GameRecord, error) {
	rec, err := scanPgGame(p.pool.QueryRow(ctx,
		`SELECT `+pgGameColumns+` FROM games
		 WHERE ((player0 = $1 AND player1 = $2) OR (player0 = $2 AND player1 = $1))
		   AND status IN ('suspended', 'playing')
		 ORDER BY updated_at DESC LIMIT 1`, a, b))
	if errors.Is(err, pgx.ErrNoRows) {
		return GameRecord{}, ErrNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("find game %s/%s: %w", a, b, err)
	}
	return rec, nil
}

func (p *Postgres) FindByPlayer(ctx context.Context, username string) ([]GameRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+pgGameColumns+` FROM games
		 WHERE (player0 = $1 OR player1 = $1) AND status IN ('suspended', 'playing')
		 ORDER BY updated_at DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("games of %s: %w", username, err)
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		rec, err := scanPgGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) SetStatus(ctx context.Context, id string, status GameStatus) error {
	if !status.Valid() {
		return fmt.Errorf("set status %s: invalid status %q", id, status)
	}
	tag, err := p.pool.Exec(ctx, `UPDATE games SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
