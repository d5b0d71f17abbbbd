// Package auth owns player accounts: password checks, session tokens and
// the win/loss counters kept next to them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zefir/statki-go-backend/internal/db"
)

var (
	ErrBadCredentials  = errors.New("bad username or password")
	ErrBadToken        = errors.New("token is invalid or revoked")
	ErrInvalidUsername = errors.New("username must be 3-32 letters, digits, '_' or '-'")
	ErrWeakPassword    = errors.New("password must be at least 4 characters")
	ErrUserExists      = db.ErrUserExists
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// Accounts issues HS256 tokens whose jti is stored as the player's session
// code. Only the latest token of a player is accepted.
type Accounts struct {
	store  db.PlayerStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

func New(store db.PlayerStore, secret []byte, ttl time.Duration) *Accounts {
	return &Accounts{
		store:  store,
		secret: secret,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

type claims struct {
	jwt.RegisteredClaims
}

func (a *Accounts) SignUp(ctx context.Context, username, password string) (string, error) {
	if !usernameRe.MatchString(username) {
		return "", ErrInvalidUsername
	}
	if len(password) < 4 {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := a.store.CreatePlayer(ctx, username, hash); err != nil {
		return "", err
	}
	return a.issue(ctx, username)
}

// Verify checks the password and returns a fresh token.
func (a *Accounts) Verify(ctx context.Context, username, password string) (string, error) {
	if err := a.checkPassword(ctx, username, password); err != nil {
		return "", err
	}
	return a.issue(ctx, username)
}

// VerifyToken returns the username a still valid token was issued to.
func (a *Accounts) VerifyToken(ctx context.Context, token string) (string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if c.Subject == "" || c.ID == "" {
		return "", ErrBadToken
	}
	p, err := a.store.GetPlayer(ctx, c.Subject)
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrBadToken
	}
	if err != nil {
		return "", fmt.Errorf("verify token of %s: %w", c.Subject, err)
	}
	if p.SessionCode != c.ID {
		return "", ErrBadToken
	}
	return p.Username, nil
}

// Logout revokes the player's current token.
func (a *Accounts) Logout(ctx context.Context, username string) error {
	if err := a.store.SetSessionCode(ctx, username, ""); err != nil {
		return fmt.Errorf("logout %s: %w", username, err)
	}
	return nil
}

// ChangePassword replaces the password after checking the current one. Every
// earlier token is revoked and a fresh one is returned.
func (a *Accounts) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (string, error) {
	if err := a.checkPassword(ctx, username, oldPassword); err != nil {
		return "", err
	}
	if len(newPassword) < 4 {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), a.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := a.store.SetPasswordHash(ctx, username, hash); err != nil {
		return "", fmt.Errorf("change password of %s: %w", username, err)
	}
	return a.issue(ctx, username)
}

// Delete removes the account and its game history after a password check.
func (a *Accounts) Delete(ctx context.Context, username, password string) error {
	if err := a.checkPassword(ctx, username, password); err != nil {
		return err
	}
	if err := a.store.DeletePlayer(ctx, username); err != nil {
		return fmt.Errorf("delete %s: %w", username, err)
	}
	return nil
}

func (a *Accounts) checkPassword(ctx context.Context, username, password string) error {
	p, err := a.store.GetPlayer(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		return ErrBadCredentials
	}
	if err != nil {
		return fmt.Errorf("verify %s: %w", username, err)
	}
	if bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(password)) != nil {
		return ErrBadCredentials
	}
	return nil
}

func (a *Accounts) issue(ctx context.Context, username string) (string, error) {
	now := a.now()
	jti := uuid.NewString()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{jwt.RegisteredClaims{
		Subject:   username,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}})
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	if err := a.store.SetSessionCode(ctx, username, jti); err != nil {
		return "", fmt.Errorf("store session code: %w", err)
	}
	return signed, nil
}

func (a *Accounts) RecordGameStart(ctx context.Context, username string) error {
	if err := a.store.IncrementPlayed(ctx, username); err != nil {
		return fmt.Errorf("record game start of %s: %w", username, err)
	}
	return nil
}

func (a *Accounts) RecordWin(ctx context.Context, username string) error {
	if err := a.store.IncrementWon(ctx, username); err != nil {
		return fmt.Errorf("record win of %s: %w", username, err)
	}
	return nil
}

// Player returns public stats, without the password hash or session code.
func (a *Accounts) Player(ctx context.Context, username string) (db.Player, error) {
	p, err := a.store.GetPlayer(ctx, username)
	if err != nil {
		return db.Player{}, err
	}
	p.PasswordHash = nil
	p.SessionCode = ""
	return p, nil
}

func (a *Accounts) Ranking(ctx context.Context, limit int) ([]db.Player, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.store.Ranking(ctx, limit)
}
