// Package memory is an in-process auth backend. It keeps accounts, profiles and
// server side sessions in memory and persists the client session to an
// artifacts.Store the way a hosted auth client does. The CLI demo mode and the
// tests run against it.
package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/campus-auth/artifacts"
	"github.com/jrsteele09/campus-auth/backend"
	apperrors "github.com/jrsteele09/campus-auth/internal/errors"
	"github.com/jrsteele09/campus-auth/mail"
	"github.com/jrsteele09/campus-auth/profiles"
	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAccessTokenTTL = time.Hour
	defaultIssuer         = "campus-auth-memory"
)

var (
	_ backend.AuthBackend = (*Backend)(nil)
	_ profiles.Repo       = (*Backend)(nil)
)

type account struct {
	user         users.User
	passwordHash string
	confirmToken string
}

type serverSession struct {
	id           string
	userID       string
	refreshToken string
}

// Backend is an in-memory AuthBackend that also serves as the profiles data backend.
type Backend struct {
	lock       sync.RWMutex
	accounts   map[string]*account       // normalised email to account
	profiles   map[string]*users.Profile // user id to profile
	sessions   map[string]*serverSession // session id to session
	refreshIDs map[string]string         // refresh token to session id

	store      artifacts.Store
	storageKey string
	listeners  *backend.Listeners
	tokens     *tokenIssuer
	mailer     mail.Sender
	siteURL    string
	cost       int
	nowTime    func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(b *Backend) {
		b.nowTime = nowFunc
	}
}

// WithAccessTokenTTL sets how long issued access tokens live.
func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.tokens.ttl = ttl
	}
}

// WithSecret sets the HMAC secret for access tokens.
func WithSecret(secret []byte) Option {
	return func(b *Backend) {
		b.tokens.secret = secret
	}
}

// WithMailer sets where confirmation emails go. The default logs them.
func WithMailer(sender mail.Sender) Option {
	return func(b *Backend) {
		b.mailer = sender
	}
}

// WithPasswordCost sets the bcrypt cost for stored password hashes.
func WithPasswordCost(cost int) Option {
	return func(b *Backend) {
		b.cost = cost
	}
}

// WithSiteURL sets the base of confirmation links.
func WithSiteURL(siteURL string) Option {
	return func(b *Backend) {
		b.siteURL = siteURL
	}
}

// WithProjectRef sets the project reference used in the persisted session key.
func WithProjectRef(ref string) Option {
	return func(b *Backend) {
		b.storageKey = artifacts.SessionKey(ref)
	}
}

// New returns a backend persisting the client session in store.
func New(store artifacts.Store, options ...Option) (*Backend, error) {
	if store == nil {
		return nil, errors.New("[memory.New] artifact store is required")
	}
	b := &Backend{
		accounts:   make(map[string]*account),
		profiles:   make(map[string]*users.Profile),
		sessions:   make(map[string]*serverSession),
		refreshIDs: make(map[string]string),
		store:      store,
		storageKey: artifacts.SessionKey("memory"),
		listeners:  backend.NewListeners(),
		tokens: &tokenIssuer{
			secret: newSecret(),
			issuer: defaultIssuer,
			ttl:    defaultAccessTokenTTL,
		},
		mailer:  mail.LogSender{},
		siteURL: "http://localhost:8080",
		cost:    bcrypt.DefaultCost,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// StorageKey returns the artifact key the client session is persisted under.
func (b *Backend) StorageKey() string {
	return b.storageKey
}

// Listeners returns the number of active session change subscriptions.
func (b *Backend) Listeners() int {
	return b.listeners.Len()
}

// CreateUser seeds an account directly, bypassing sign up mail.
func (b *Backend) CreateUser(email, password string, metadata users.Metadata, confirmed bool) (*users.User, error) {
	if err := users.ValidateCredentials(email, password); err != nil {
		return nil, backend.NewAuthError(http.StatusUnprocessableEntity, backend.CodeValidationFailed, err.Error())
	}
	if metadata.Role == "" {
		metadata.Role = users.RoleStudent
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return nil, errors.Wrap(err, "[Backend.CreateUser] hash password")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	key := users.NormaliseEmail(email)
	if _, exists := b.accounts[key]; exists {
		return nil, backend.NewAuthError(http.StatusUnprocessableEntity, backend.CodeUserAlreadyExists, "User already registered")
	}
	acc := &account{
		user: users.User{
			ID:             uuid.New().String(),
			Email:          key,
			EmailConfirmed: confirmed,
			FirstName:      metadata.FirstName,
			LastName:       metadata.LastName,
			Role:           metadata.Role,
		},
		passwordHash: string(hash),
	}
	if !confirmed {
		acc.confirmToken = uuid.New().String()
	}
	b.accounts[key] = acc
	b.profiles[acc.user.ID] = &users.Profile{ID: acc.user.ID, Role: metadata.Role}

	u := acc.user
	return &u, nil
}

// SetRole overwrites a user's profile role.
func (b *Backend) SetRole(userID string, role users.RoleType) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	p, ok := b.profiles[userID]
	if !ok {
		return profiles.ErrProfileNotFound
	}
	p.Role = role
	return nil
}

// DeleteProfile removes a user's profile row, leaving the account.
func (b *Backend) DeleteProfile(userID string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.profiles, userID)
}

// ConfirmEmail marks the account holding token as confirmed.
func (b *Backend) ConfirmEmail(_ context.Context, token string) (*users.User, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, acc := range b.accounts {
		if token != "" && acc.confirmToken == token {
			acc.user.EmailConfirmed = true
			acc.confirmToken = ""
			u := acc.user
			return &u, nil
		}
	}
	return nil, apperrors.ErrInvalidToken
}

// GetByUserID implements profiles.Repo.
func (b *Backend) GetByUserID(_ context.Context, userID string) (*users.Profile, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	p, ok := b.profiles[userID]
	if !ok {
		return nil, profiles.ErrProfileNotFound
	}
	c := *p
	return &c, nil
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*backend.SignInResult, error) {
	b.lock.Lock()
	acc, ok := b.accounts[users.NormaliseEmail(email)]
	if !ok || bcrypt.CompareHashAndPassword([]byte(acc.passwordHash), []byte(password)) != nil {
		b.lock.Unlock()
		return nil, backend.ErrInvalidCredentials()
	}
	if !acc.user.EmailConfirmed {
		b.lock.Unlock()
		return nil, backend.ErrEmailNotConfirmed()
	}
	user := acc.user
	session, err := b.openSessionLocked(&user)
	b.lock.Unlock()
	if err != nil {
		return nil, err
	}

	if err := b.persist(ctx, session); err != nil {
		return nil, err
	}
	b.listeners.Notify(backend.EventSignedIn, session)
	return &backend.SignInResult{Session: session.Clone(), User: &user}, nil
}

func (b *Backend) SignUp(ctx context.Context, email, password string, metadata users.Metadata) (*users.User, error) {
	user, err := b.CreateUser(email, password, metadata, false)
	if err != nil {
		return nil, err
	}
	if err := b.sendConfirmation(ctx, user.Email); err != nil {
		return nil, err
	}
	return user, nil
}

func (b *Backend) SignOut(ctx context.Context, scope backend.SignOutScope) error {
	current, err := b.readPersisted(ctx)
	if err != nil {
		log.Err(err).Msg("[memory.SignOut] unreadable persisted session")
	}

	if current != nil {
		b.revoke(current.UserID(), b.sessionIDFor(current), scope)
	}

	if scope == backend.ScopeOthers {
		return nil
	}
	if err := b.store.Remove(ctx, b.storageKey); err != nil {
		return errors.Wrap(err, "[memory.SignOut] remove persisted session")
	}
	b.listeners.Notify(backend.EventSignedOut, nil)
	return nil
}

func (b *Backend) ResendConfirmation(ctx context.Context, email string) error {
	b.lock.Lock()
	acc, ok := b.accounts[users.NormaliseEmail(email)]
	if !ok || acc.user.EmailConfirmed {
		// Unknown or confirmed addresses are not reported to the caller.
		b.lock.Unlock()
		return nil
	}
	acc.confirmToken = uuid.New().String()
	b.lock.Unlock()
	return b.sendConfirmation(ctx, email)
}

// GetCurrentSession returns the persisted session when it is still backed by a
// live server session. An expired access token is renewed with the refresh
// token and announced as TOKEN_REFRESHED.
func (b *Backend) GetCurrentSession(ctx context.Context) (*sessions.Session, error) {
	current, err := b.readPersisted(ctx)
	if err != nil || current == nil {
		return nil, err
	}

	claims, err := b.tokens.verify(current.AccessToken, b.nowTime())
	if err == nil && b.sessionActive(claims.SessionID) {
		return current, nil
	}

	refreshed, refreshErr := b.refresh(current.RefreshToken)
	if refreshErr != nil {
		log.Debug().Err(refreshErr).Msg("[memory.GetCurrentSession] discarding persisted session")
		if err := b.store.Remove(ctx, b.storageKey); err != nil {
			return nil, errors.Wrap(err, "[memory.GetCurrentSession] remove stale session")
		}
		return nil, nil
	}
	if err := b.persist(ctx, refreshed); err != nil {
		return nil, err
	}
	b.listeners.Notify(backend.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

func (b *Backend) OnSessionChange(listener backend.ChangeListener) backend.Subscription {
	return b.listeners.Add(listener)
}

// ActiveSessions returns how many server side sessions userID holds.
func (b *Backend) ActiveSessions(userID string) int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	n := 0
	for _, s := range b.sessions {
		if s.userID == userID {
			n++
		}
	}
	return n
}

func (b *Backend) openSessionLocked(user *users.User) (*sessions.Session, error) {
	sessionID := uuid.New().String()
	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	accessToken, expiresAt, err := b.tokens.issue(user, sessionID, b.nowTime())
	if err != nil {
		return nil, err
	}
	b.sessions[sessionID] = &serverSession{id: sessionID, userID: user.ID, refreshToken: refreshToken}
	b.refreshIDs[refreshToken] = sessionID

	u := *user
	return &sessions.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         &u,
	}, nil
}

func (b *Backend) refresh(refreshToken string) (*sessions.Session, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	sessionID, ok := b.refreshIDs[refreshToken]
	if !ok || refreshToken == "" {
		return nil, backend.NewAuthError(http.StatusBadRequest, backend.CodeRefreshTokenNotFound, "Invalid Refresh Token: Refresh Token Not Found")
	}
	old, ok := b.sessions[sessionID]
	if !ok {
		delete(b.refreshIDs, refreshToken)
		return nil, apperrors.ErrSessionNotFound
	}
	delete(b.refreshIDs, refreshToken)
	delete(b.sessions, sessionID)

	var user *users.User
	for _, acc := range b.accounts {
		if acc.user.ID == old.userID {
			u := acc.user
			user = &u
			break
		}
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}
	return b.openSessionLocked(user)
}

func (b *Backend) revoke(userID, sessionID string, scope backend.SignOutScope) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for id, s := range b.sessions {
		var drop bool
		switch scope {
		case backend.ScopeGlobal:
			drop = s.userID == userID
		case backend.ScopeOthers:
			drop = s.userID == userID && id != sessionID
		default:
			drop = id == sessionID
		}
		if drop {
			delete(b.refreshIDs, s.refreshToken)
			delete(b.sessions, id)
		}
	}
}

// sessionIDFor finds the server session behind a client session, whether or
// not its access token has expired.
func (b *Backend) sessionIDFor(session *sessions.Session) string {
	if claims, err := b.tokens.verify(session.AccessToken, b.nowTime()); err == nil {
		return claims.SessionID
	}
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.refreshIDs[session.RefreshToken]
}

func (b *Backend) sessionActive(sessionID string) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	_, ok := b.sessions[sessionID]
	return ok
}

func (b *Backend) sendConfirmation(ctx context.Context, email string) error {
	b.lock.RLock()
	acc, ok := b.accounts[users.NormaliseEmail(email)]
	var token string
	if ok {
		token = acc.confirmToken
	}
	b.lock.RUnlock()
	if !ok || token == "" {
		return nil
	}
	if err := b.mailer.SendConfirmation(ctx, acc.user.Email, mail.ConfirmationLink(b.siteURL, token)); err != nil {
		return errors.Wrap(err, "[memory.sendConfirmation]")
	}
	return nil
}

func (b *Backend) persist(ctx context.Context, session *sessions.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[memory.persist] encode")
	}
	return errors.Wrap(b.store.Set(ctx, b.storageKey, string(data)), "[memory.persist] store")
}

func (b *Backend) readPersisted(ctx context.Context) (*sessions.Session, error) {
	raw, err := b.store.Get(ctx, b.storageKey)
	if errors.Is(err, apperrors.ErrArtifactNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[memory.readPersisted] store")
	}
	var session sessions.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, errors.Wrap(err, "[memory.readPersisted] decode")
	}
	if !session.Valid() {
		return nil, nil
	}
	return &session, nil
}
