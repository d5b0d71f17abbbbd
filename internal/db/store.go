// Package db is the persistence gateway for accounts and games. Two
// backends share one contract: Postgres through pgx and SQLite through
// modernc.org/sqlite.
package db

import (
	"context"
	"errors"
	"time"

	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("user already exists")
)

type Player struct {
	Username     string
	PasswordHash []byte
	GamesPlayed  int
	GamesWon     int
	// SessionCode is the id of the only token currently accepted for the player.
	SessionCode string
}

type GameStatus string

const (
	StatusSuspended GameStatus = "suspended"
	StatusPlaying   GameStatus = "playing"
	StatusP0Won     GameStatus = "p0_won"
	StatusP1Won     GameStatus = "p1_won"
)

func (s GameStatus) Finished() bool { return s == StatusP0Won || s == StatusP1Won }

func (s GameStatus) Valid() bool {
	switch s {
	case StatusSuspended, StatusPlaying, StatusP0Won, StatusP1Won:
		return true
	}
	return false
}

// WonBy returns the status recording a win for seat.
func WonBy(seat int) GameStatus {
	if seat == 0 {
		return StatusP0Won
	}
	return StatusP1Won
}

// GameRecord is one persisted match. Version grows with every state change
// so a late write never replaces newer state.
type GameRecord struct {
	ID        string
	Player0   string
	Player1   string
	Mode      uint16
	Status    GameStatus
	Snapshot  ships.Snapshot
	Version   int64
	UpdatedAt time.Time
}

type PlayerStore interface {
	CreatePlayer(ctx context.Context, username string, passwordHash []byte) error
	GetPlayer(ctx context.Context, username string) (Player, error)
	SetSessionCode(ctx context.Context, username, code string) error
	SetPasswordHash(ctx context.Context, username string, passwordHash []byte) error
	// DeletePlayer removes the player together with every game they sat in.
	DeletePlayer(ctx context.Context, username string) error
	IncrementPlayed(ctx context.Context, username string) error
	IncrementWon(ctx context.Context, username string) error
	// Ranking orders by wins, then by fewest games played.
	Ranking(ctx context.Context, limit int) ([]Player, error)
}

type GameStore interface {
	SaveGame(ctx context.Context, rec GameRecord) error
	LoadGame(ctx context.Context, id string) (GameRecord, error)
	// FindUnfinished returns the latest unfinished game between two players
	// in either seat order.
	FindUnfinished(ctx context.Context, a, b string) (GameRecord, error)
	// FindByPlayer lists unfinished games the player sits in.
	FindByPlayer(ctx context.Context, username string) ([]GameRecord, error)
	SetStatus(ctx context.Context, id string, status GameStatus) error
}

type Store interface {
	PlayerStore
	GameStore
	Close() error
}

// Open picks postgres when a uri is given and sqlite otherwise.
func Open(ctx context.Context, postgresURI, sqlitePath string) (Store, error) {
	if postgresURI != "" {
		return OpenPostgres(ctx, postgresURI)
	}
	return OpenSQLite(ctx, sqlitePath)
}
