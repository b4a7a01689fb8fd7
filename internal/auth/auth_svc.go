package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisSessionKeyPrefix = "sess:"

var (
	ErrEmptyCredentials   = errors.New("username and password must not be empty")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionExpired     = errors.New("session expired or unknown")
)

type IAuthService interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (sessionID string, err error)
	CheckSession(ctx context.Context, sessionID string) (username string, err error)
	Logout(ctx context.Context, sessionID string) error
}

type authService struct {
	rdc        *redis.Client
	db         *sql.DB
	sessionTTL time.Duration
}

func NewAuthService(rdc *redis.Client, db *sql.DB, sessionTTL time.Duration) IAuthService {
	return &authService{
		rdc:        rdc,
		db:         db,
		sessionTTL: sessionTTL,
	}
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func newSessionID() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func (svc *authService) Register(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrEmptyCredentials
	}

	var exists bool
	err := svc.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrUserExists
	}

	_, err = svc.db.ExecContext(ctx,
		`INSERT INTO users (username, password) VALUES ($1, $2)`,
		username, hashPassword(password))
	return err
}

// Login verifies the credentials and issues a session token. The token lives
// in Redis with a TTL and is mirrored into Postgres so sessions survive a
// Redis flush; the expiry watcher removes the mirror row when the key lapses.
func (svc *authService) Login(ctx context.Context, username, password string) (string, error) {
	var stored string
	err := svc.db.QueryRowContext(ctx,
		`SELECT password FROM users WHERE username = $1`, username).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if stored != hashPassword(password) {
		return "", ErrInvalidCredentials
	}

	sessionID := newSessionID()
	expires := time.Now().Add(svc.sessionTTL)

	if err := svc.rdc.Set(ctx, redisSessionKeyPrefix+sessionID, username, svc.sessionTTL).Err(); err != nil {
		return "", err
	}
	_, err = svc.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, username, expires) VALUES ($1, $2, $3)`,
		sessionID, username, float64(expires.UnixNano())/1e9)
	if err != nil {
		// Redis copy still works for the TTL window; log and carry on.
		zap.L().Warn("auth.session_mirror", zap.Error(err))
	}
	return sessionID, nil
}

func (svc *authService) CheckSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrSessionExpired
	}

	// 1. Fast path - Redis holds every live session.
	username, err := svc.rdc.Get(ctx, redisSessionKeyPrefix+sessionID).Result()
	if err == nil && username != "" {
		return username, nil
	}
	if err != nil && err != redis.Nil {
		zap.L().Warn("auth.session_lookup", zap.Error(err))
	}

	// 2. Fall back to the Postgres mirror and repopulate Redis.
	var expires float64
	err = svc.db.QueryRowContext(ctx,
		`SELECT username, expires FROM sessions WHERE session_id = $1`,
		sessionID).Scan(&username, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionExpired
	}
	if err != nil {
		return "", err
	}

	remaining := time.Until(time.Unix(0, int64(expires*1e9)))
	if remaining <= 0 {
		return "", ErrSessionExpired
	}
	_ = svc.rdc.Set(ctx, redisSessionKeyPrefix+sessionID, username, remaining).Err()
	return username, nil
}

func (svc *authService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	_ = svc.rdc.Del(ctx, redisSessionKeyPrefix+sessionID).Err()
	_, err := svc.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}
