package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vladimirov321/FitTrack/internal/config"
	"github.com/vladimirov321/FitTrack/internal/db"
	"github.com/vladimirov321/FitTrack/internal/model"
	"golang.org/x/crypto/bcrypt"
)

const (
	refreshCookieName = "refreshToken"
	minPasswordLength = 6
	maxEmailLength    = 254
	hoursPerDay       = 24
)

var (
	ErrMissingCredentials  = errors.New("email and password required")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrShortPassword       = errors.New("password too short")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrConflict            = errors.New("email already in use")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrUserNotFound        = errors.New("user not found")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMalformed      = errors.New("invalid token")
	ErrMisconfigured       = errors.New("auth config invalid")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserStore persists user identities. Email uniqueness is enforced by the
// store; callers pass emails already normalized.
type UserStore interface {
	CreateUser(ctx context.Context, id, email, passwordHash string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
}

// RefreshTokenStore persists single-use refresh tokens keyed by token hash.
// ConsumeRefreshToken must be atomic: of any number of concurrent calls with
// the same hash, exactly one returns the owner and the rest fail.
type RefreshTokenStore interface {
	InsertRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string) (string, error)
	DeleteRefreshToken(ctx context.Context, tokenHash string) error
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

type AuthService struct {
	users      UserStore
	tokens     RefreshTokenStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	cookieCfg  CookieConfig
}

type authClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewAuthService(users UserStore, tokens RefreshTokenStore, cfg config.AuthConfig) (*AuthService, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrMisconfigured)
	}

	accessTTL, err := time.ParseDuration(cfg.JWTAccessTTL)
	if err != nil || accessTTL <= 0 {
		return nil, fmt.Errorf("%w: invalid JWT_ACCESS_TTL", ErrMisconfigured)
	}

	refreshDays, err := strconv.Atoi(cfg.RefreshTokenDays)
	if err != nil || refreshDays <= 0 {
		return nil, fmt.Errorf("%w: invalid REFRESH_TOKEN_DAYS", ErrMisconfigured)
	}
	refreshTTL := time.Duration(refreshDays) * hoursPerDay * time.Hour

	cookieSecure, err := parseBool(cfg.CookieSecure, cfg.Env == "production")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SECURE", ErrMisconfigured)
	}

	cookiePath := cfg.CookiePath
	if strings.TrimSpace(cookiePath) == "" {
		cookiePath = "/"
	}

	return &AuthService{
		users:      users,
		tokens:     tokens,
		jwtSecret:  []byte(cfg.JWTSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		cookieCfg: CookieConfig{
			Name:     refreshCookieName,
			Path:     cookiePath,
			Domain:   cfg.CookieDomain,
			Secure:   cookieSecure,
			SameSite: http.SameSiteStrictMode,
			MaxAge:   int(refreshTTL.Seconds()),
		},
	}, nil
}

func (s *AuthService) CookieConfig() CookieConfig {
	return s.cookieCfg
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, uuid.NewString(), email, string(hash))
	if err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			return nil, ErrConflict
		}
		return nil, err
	}

	return user, nil
}

// Login returns the same error for an unknown email and a wrong password so
// the response does not reveal which factor failed.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(ctx, user)
}

// Refresh consumes the presented token and mints a fresh session for its
// owner. The consume is a single atomic store operation, so a token value
// authorizes at most one refresh ever; once it is gone it stays gone even if
// a later step in this call fails.
func (s *AuthService) Refresh(ctx context.Context, oldToken string) (*model.Session, error) {
	if strings.TrimSpace(oldToken) == "" {
		return nil, ErrInvalidRefreshToken
	}

	userID, err := s.tokens.ConsumeRefreshToken(ctx, hashRefreshToken(oldToken))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Token row orphaned by an out-of-band user deletion.
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return s.issueSession(ctx, user)
}

// Logout is idempotent: revoking an absent or already-revoked token succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	return s.tokens.DeleteRefreshToken(ctx, hashRefreshToken(refreshToken))
}

func (s *AuthService) ParseAccessToken(tokenStr string) (*model.AuthUser, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}

	return &model.AuthUser{
		ID:    claims.Subject,
		Email: claims.Email,
	}, nil
}

// SweepExpiredTokens reaps expired refresh token rows. Correctness does not
// depend on it; consume rejects expired rows on its own.
func (s *AuthService) SweepExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpiredRefreshTokens(ctx)
}

func (s *AuthService) issueSession(ctx context.Context, user *model.User) (*model.Session, error) {
	accessToken, expiresIn, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshHash, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	if err := s.tokens.InsertRefreshToken(ctx, user.ID, refreshHash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}

	return &model.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

func (s *AuthService) generateAccessToken(user *model.User) (string, int64, error) {
	now := time.Now()
	claims := authClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(s.accessTTL.Seconds()), nil
}

// NormalizeEmail is applied before every store call so uniqueness and lookup
// agree on one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	if len(email) > maxEmailLength || !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return ErrShortPassword
	}
	return nil
}

func parseBool(value string, fallback bool) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}

func newRefreshToken() (string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	return token, hashRefreshToken(token), nil
}

// Refresh tokens are stored hashed; a leaked refresh_tokens table does not
// yield usable tokens.
func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
