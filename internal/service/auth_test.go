package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladimirov321/FitTrack/internal/config"
	"github.com/vladimirov321/FitTrack/internal/db"
	"github.com/vladimirov321/FitTrack/internal/model"
)

type tokenRow struct {
	userID    string
	expiresAt time.Time
}

// fakeStore implements UserStore and RefreshTokenStore in memory. Consume is
// guarded by the mutex, so it is atomic the same way the SQL conditional
// delete is.
type fakeStore struct {
	mu     sync.Mutex
	users  map[string]*model.User // keyed by id
	emails map[string]string      // email -> id
	tokens map[string]tokenRow    // keyed by token hash
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[string]*model.User),
		emails: make(map[string]string),
		tokens: make(map[string]tokenRow),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, id, email, passwordHash string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.emails[email]; exists {
		return nil, db.ErrDuplicateEmail
	}
	user := &model.User{ID: id, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.users[id] = user
	f.emails[email] = id
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.emails[email]
	if !ok {
		return nil, db.ErrNotFound
	}
	u := *f.users[id]
	return &u, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (f *fakeStore) InsertRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[tokenHash] = tokenRow{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) ConsumeRefreshToken(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.tokens[tokenHash]
	if !ok || !row.expiresAt.After(time.Now()) {
		return "", db.ErrNotFound
	}
	delete(f.tokens, tokenHash)
	return row.userID, nil
}

func (f *fakeStore) DeleteRefreshToken(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, tokenHash)
	return nil
}

func (f *fakeStore) DeleteExpiredRefreshTokens(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for hash, row := range f.tokens {
		if !row.expiresAt.After(time.Now()) {
			delete(f.tokens, hash)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) tokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func (f *fakeStore) expireAllTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for hash, row := range f.tokens {
		row.expiresAt = time.Now().Add(-time.Minute)
		f.tokens[hash] = row
	}
}

func (f *fakeStore) deleteUser(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[id]; ok {
		delete(f.emails, user.Email)
		delete(f.users, id)
	}
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:        "test-secret",
		JWTAccessTTL:     "15m",
		RefreshTokenDays: "7",
		Env:              "development",
	}
}

func newTestService(t *testing.T) (*AuthService, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc, err := NewAuthService(store, store, testAuthConfig())
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc, store
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "  Alice@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "secret1" || user.PasswordHash == "" {
		t.Fatalf("password must be stored hashed")
	}

	session, err := svc.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("expected a full session, got %+v", session)
	}

	identity, err := svc.ParseAccessToken(session.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if identity.ID != user.ID || identity.Email != user.Email {
		t.Fatalf("claims mismatch: %+v", identity)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"missing email", "", "secret1", ErrMissingCredentials},
		{"missing password", "alice@example.com", "", ErrMissingCredentials},
		{"malformed email", "not-an-email", "secret1", ErrInvalidEmail},
		{"email with spaces", "a b@example.com", "secret1", ErrInvalidEmail},
		{"short password", "alice@example.com", "12345", ErrShortPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.email, tc.password); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "ALICE@example.com", "other-password"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestLoginDoesNotRevealWhichFactorFailed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPassword := svc.Login(ctx, "alice@example.com", "wrong-pass")
	_, unknownEmail := svc.Login(ctx, "nobody@example.com", "secret1")

	if !errors.Is(wrongPassword, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongPassword)
	}
	if !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", unknownEmail)
	}
}

func TestRefreshRotatesAndInvalidatesOldToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	first, err := svc.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh must rotate the token value")
	}

	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("stale token reuse: expected ErrInvalidRefreshToken, got %v", err)
	}

	if _, err := svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("fresh token must still work: %v", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Refresh(ctx, session.RefreshToken)
			results <- err
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrInvalidRefreshToken):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestRefreshExpiredTokenIssuesNothing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	store.expireAllTokens()
	before := store.tokenCount()

	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
	if store.tokenCount() != before {
		t.Fatalf("a failed refresh must not mint a new token")
	}
}

func TestRefreshOrphanedToken(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	store.deleteUser(user.ID)

	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Logout(ctx, ""); err != nil {
		t.Fatalf("logout with no token: %v", err)
	}
	if err := svc.Logout(ctx, "never-issued"); err != nil {
		t.Fatalf("logout with unknown token: %v", err)
	}

	if _, err := svc.Register(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(ctx, session.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := svc.Logout(ctx, session.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh after logout: expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestParseAccessTokenExpiry(t *testing.T) {
	store := newFakeStore()
	cfg := testAuthConfig()
	cfg.JWTAccessTTL = "1ms"
	svc, err := NewAuthService(store, store, cfg)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	ctx := context.Background()
	if _, err := svc.Register(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := svc.ParseAccessToken(session.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseAccessTokenMalformed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ParseAccessToken("not-a-jwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("garbage token: expected ErrTokenMalformed, got %v", err)
	}

	otherStore := newFakeStore()
	otherCfg := testAuthConfig()
	otherCfg.JWTSecret = "different-secret"
	other, err := NewAuthService(otherStore, otherStore, otherCfg)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	if _, err := other.Register(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := other.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.ParseAccessToken(session.AccessToken); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("foreign signature: expected ErrTokenMalformed, got %v", err)
	}
}

func TestSweepExpiredTokens(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Login(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("second login: %v", err)
	}

	store.expireAllTokens()
	n, err := svc.SweepExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 || store.tokenCount() != 0 {
		t.Fatalf("expected 2 rows reaped, got n=%d remaining=%d", n, store.tokenCount())
	}
}

func TestNewAuthServiceMisconfigured(t *testing.T) {
	store := newFakeStore()

	cases := []struct {
		name   string
		mutate func(*config.AuthConfig)
	}{
		{"missing secret", func(c *config.AuthConfig) { c.JWTSecret = "" }},
		{"bad access ttl", func(c *config.AuthConfig) { c.JWTAccessTTL = "soon" }},
		{"zero access ttl", func(c *config.AuthConfig) { c.JWTAccessTTL = "0s" }},
		{"bad refresh days", func(c *config.AuthConfig) { c.RefreshTokenDays = "-1" }},
		{"bad cookie secure", func(c *config.AuthConfig) { c.CookieSecure = "maybe" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testAuthConfig()
			tc.mutate(&cfg)
			if _, err := NewAuthService(store, store, cfg); !errors.Is(err, ErrMisconfigured) {
				t.Fatalf("expected ErrMisconfigured, got %v", err)
			}
		})
	}
}
