// Package identity is the local sign-up / sign-in provider. It answers one
// question for the rest of the app: who is the current user, if anyone.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no valid session")
)

const leeway = 30 * time.Second

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type SignUpInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type Service struct {
	db     *sql.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(db *sql.DB, secret string, ttl time.Duration) *Service {
	return &Service{db: db, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (s *Service) SignUp(ctx context.Context, in SignUpInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	u := User{
		ID:          uuid.NewString(),
		Email:       normalizeEmail(in.Email),
		DisplayName: strings.TrimSpace(strings.TrimSpace(in.FirstName) + " " + strings.TrimSpace(in.LastName)),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING
	`, u.ID, u.Email, u.DisplayName, string(hash))
	if err != nil {
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return User{}, err
	} else if n == 0 {
		return User{}, ErrEmailTaken
	}
	return u, nil
}

// SignIn checks the password and opens a session. The returned token is a
// signed JWT whose jti names the session row.
func (s *Service) SignIn(ctx context.Context, email, password string) (User, string, error) {
	var (
		u    User
		hash string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash FROM users WHERE email = ?
	`, normalizeEmail(email)).Scan(&u.ID, &u.Email, &u.DisplayName, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return User{}, "", fmt.Errorf("looking up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return User{}, "", ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(s.ttl)
	sessionID := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (id, user_id, expires_at) VALUES (?, ?, ?)
	`, sessionID, u.ID, expires.UTC().Format(time.RFC3339)); err != nil {
		return User{}, "", fmt.Errorf("creating session: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sessionID,
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return User{}, "", fmt.Errorf("signing token: %w", err)
	}
	return u, signed, nil
}

func (s *Service) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.ID == "" {
		return nil, ErrNoSession
	}
	return claims, nil
}

// CurrentUser resolves a token to its user. Expired, forged or signed-out
// tokens yield ErrNoSession.
func (s *Service) CurrentUser(ctx context.Context, token string) (User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return User{}, err
	}

	var (
		u       User
		expires string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.display_name, s.expires_at
		FROM user_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ? AND s.user_id = ?
	`, claims.ID, claims.Subject).Scan(&u.ID, &u.Email, &u.DisplayName, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNoSession
	}
	if err != nil {
		return User{}, fmt.Errorf("looking up session: %w", err)
	}

	exp, err := time.Parse(time.RFC3339, expires)
	if err != nil || !s.now().Before(exp.Add(leeway)) {
		return User{}, ErrNoSession
	}
	return u, nil
}

// SignOut ends the token's session and returns the user it belonged to.
func (s *Service) SignOut(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = ?`, claims.ID)
	if err != nil {
		return "", fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrNoSession
	}
	return claims.Subject, nil
}

// DeleteExpiredSessions removes sessions past their expiry.
func (s *Service) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at < ?`,
		s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
