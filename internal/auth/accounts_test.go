package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/zefir/statki-go-backend/internal/db"
)

func newTestAccounts(t *testing.T) (*Accounts, *db.SQLite) {
	t.Helper()
	store, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	a := New(store, []byte("test-secret"), time.Hour)
	a.cost = bcrypt.MinCost
	return a, store
}

func TestSignUpAndVerify(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)

	token, err := a.SignUp(ctx, "nemo", "nautilus")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if user, err := a.VerifyToken(ctx, token); err != nil || user != "nemo" {
		t.Fatalf("VerifyToken = %q, %v", user, err)
	}
	if _, err := a.SignUp(ctx, "nemo", "other"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate sign up err = %v", err)
	}
	if _, err := a.Verify(ctx, "nemo", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := a.Verify(ctx, "ghost", "whatever"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown user err = %v", err)
	}
	if _, err := a.Verify(ctx, "nemo", "nautilus"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	a, _ := newTestAccounts(t)
	tests := []struct {
		name, user, pass string
		want             error
	}{
		{"short name", "ab", "secret", ErrInvalidUsername},
		{"spaces", "a b c", "secret", ErrInvalidUsername},
		{"short password", "valid_name", "abc", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.SignUp(context.Background(), tt.user, tt.pass); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewLoginRevokesOldToken(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)
	first, err := a.SignUp(ctx, "flint", "treasure")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	second, err := a.Verify(ctx, "flint", "treasure")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := a.VerifyToken(ctx, first); !errors.Is(err, ErrBadToken) {
		t.Fatalf("old token err = %v", err)
	}
	if _, err := a.VerifyToken(ctx, second); err != nil {
		t.Fatalf("new token: %v", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)
	token, err := a.SignUp(ctx, "silver", "parrot")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := a.Logout(ctx, "silver"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := a.VerifyToken(ctx, token); !errors.Is(err, ErrBadToken) {
		t.Fatalf("token after logout err = %v", err)
	}
}

func TestVerifyTokenRejects(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)
	token, err := a.SignUp(ctx, "drake", "golden-hind")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	t.Run("expired", func(t *testing.T) {
		a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { a.now = time.Now }()
		if _, err := a.VerifyToken(ctx, token); !errors.Is(err, ErrBadToken) {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("other secret", func(t *testing.T) {
		other := New(nil, []byte("another-secret"), time.Hour)
		if _, err := other.VerifyToken(ctx, token); !errors.Is(err, ErrBadToken) {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("wrong method", func(t *testing.T) {
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{jwt.RegisteredClaims{
			Subject:   "drake",
			ID:        "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := a.VerifyToken(ctx, none); !errors.Is(err, ErrBadToken) {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("garbage", func(t *testing.T) {
		if _, err := a.VerifyToken(ctx, "not-a-token"); !errors.Is(err, ErrBadToken) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestCountersAndPublicPlayer(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)
	for _, name := range []string{"alpha", "bravo"} {
		if _, err := a.SignUp(ctx, name, "password"); err != nil {
			t.Fatalf("sign up %s: %v", name, err)
		}
		if err := a.RecordGameStart(ctx, name); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	if err := a.RecordWin(ctx, "bravo"); err != nil {
		t.Fatalf("win: %v", err)
	}
	if err := a.RecordWin(ctx, "nobody"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("win of unknown err = %v", err)
	}

	p, err := a.Player(ctx, "bravo")
	if err != nil {
		t.Fatalf("player: %v", err)
	}
	if p.GamesPlayed != 1 || p.GamesWon != 1 || p.PasswordHash != nil || p.SessionCode != "" {
		t.Fatalf("player = %+v", p)
	}

	ranking, err := a.Ranking(ctx, 0)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(ranking) != 2 || ranking[0].Username != "bravo" {
		t.Fatalf("ranking = %+v", ranking)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)
	old, err := a.SignUp(ctx, "hook", "crocodile")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := a.ChangePassword(ctx, "hook", "wrong", "tick-tock"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong old password err = %v", err)
	}
	if _, err := a.ChangePassword(ctx, "hook", "crocodile", "abc"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password err = %v", err)
	}

	fresh, err := a.ChangePassword(ctx, "hook", "crocodile", "tick-tock")
	if err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := a.VerifyToken(ctx, old); !errors.Is(err, ErrBadToken) {
		t.Fatalf("old token err = %v", err)
	}
	if user, err := a.VerifyToken(ctx, fresh); err != nil || user != "hook" {
		t.Fatalf("fresh token = %q, %v", user, err)
	}
	if _, err := a.Verify(ctx, "hook", "crocodile"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := a.Verify(ctx, "hook", "tick-tock"); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	a, store := newTestAccounts(t)
	token, err := a.SignUp(ctx, "bones", "rum-barrel")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if err := a.Delete(ctx, "bones", "water"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if err := a.Delete(ctx, "bones", "rum-barrel"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetPlayer(ctx, "bones"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("player still stored: %v", err)
	}
	if _, err := a.VerifyToken(ctx, token); !errors.Is(err, ErrBadToken) {
		t.Fatalf("token of deleted player err = %v", err)
	}
	if _, err := a.SignUp(ctx, "bones", "second-life"); err != nil {
		t.Fatalf("name not freed: %v", err)
	}
}
