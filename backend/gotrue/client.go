// Package gotrue is an AuthBackend for a hosted GoTrue compatible auth service
// (the service behind Supabase Auth), with profile lookups over its PostgREST API.
// The client session is persisted in an artifacts.Store under the key the
// browser client uses, so artifact cleanup before login covers it.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/campus-auth/artifacts"
	"github.com/jrsteele09/campus-auth/backend"
	apperrors "github.com/jrsteele09/campus-auth/internal/errors"
	"github.com/jrsteele09/campus-auth/sessions"
	"github.com/jrsteele09/campus-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	authPath       = "/auth/v1"
	defaultTimeout = 10 * time.Second
	// expiryMargin renews tokens slightly before they expire.
	expiryMargin = 10 * time.Second
)

var _ backend.AuthBackend = (*Client)(nil)

// Config locates the service.
type Config struct {
	URL        string        // Project URL, e.g. https://xyz.supabase.co
	APIKey     string        // Public (anon) API key
	ProjectRef string        // Used in the persisted session key
	Timeout    time.Duration // Per request
}

// Client talks to the auth service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	store      artifacts.Store
	storageKey string
	listeners  *backend.Listeners
	nowTime    func() time.Time

	refreshLock sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// New validates cfg and returns a client persisting its session in store.
func New(cfg Config, store artifacts.Store, options ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("[gotrue.New] URL is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, errors.Wrap(err, "[gotrue.New] invalid URL")
	}
	if store == nil {
		return nil, errors.New("[gotrue.New] artifact store is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ref := cfg.ProjectRef
	if ref == "" {
		ref = projectRefFromURL(cfg.URL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		storageKey: artifacts.SessionKey(ref),
		listeners:  backend.NewListeners(),
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// projectRefFromURL takes the first label of the host, as the browser client does.
func projectRefFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "local"
	}
	return strings.Split(u.Hostname(), ".")[0]
}

// StorageKey returns the artifact key the session is persisted under.
func (c *Client) StorageKey() string {
	return c.storageKey
}

type userBody struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	ConfirmedAt      *time.Time `json:"confirmed_at"`
	UserMetadata     struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Role      string `json:"role"`
	} `json:"user_metadata"`
}

func (u *userBody) toUser() *users.User {
	if u == nil || u.ID == "" {
		return nil
	}
	return &users.User{
		ID:             u.ID,
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmedAt != nil || u.ConfirmedAt != nil,
		FirstName:      u.UserMetadata.FirstName,
		LastName:       u.UserMetadata.LastName,
		Role:           users.RoleType(u.UserMetadata.Role),
	}
}

type sessionBody struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
	User         *userBody `json:"user"`
}

// toSession converts a token response. The expiry comes from expires_at,
// then expires_in, then the access token's own exp claim.
func (s *sessionBody) toSession(now time.Time) *sessions.Session {
	if s.AccessToken == "" {
		return nil
	}
	token := &oauth2.Token{AccessToken: s.AccessToken, TokenType: s.TokenType, RefreshToken: s.RefreshToken}
	switch {
	case s.ExpiresAt > 0:
		token.Expiry = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		token.Expiry = now.Add(time.Duration(s.ExpiresIn) * time.Second)
	default:
		token.Expiry = tokenExpiry(s.AccessToken)
	}
	return &sessions.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    token.Expiry,
		User:         s.User.toUser(),
	}
}

// tokenExpiry reads exp from a JWT without verifying it; the service verifies
// its own tokens on every call.
func tokenExpiry(raw string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// decodeError turns an error response into an *AuthError. Older services send
// error/error_description, newer ones error_code/msg.
func decodeError(status int, body []byte) *backend.AuthError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	message := firstNonEmpty(eb.Msg, eb.Message, eb.ErrorDescription, eb.Error, http.StatusText(status))
	code := eb.ErrorCode
	if code == "" && message == backend.MessageEmailNotConfirmed {
		code = backend.CodeEmailNotConfirmed
	}
	if code == "" && message == backend.MessageInvalidCredentials {
		code = backend.CodeInvalidCredentials
	}
	return backend.NewAuthError(status, code, message)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// do sends a JSON request and decodes a JSON response into out. A non 2xx
// status becomes an *AuthError. token, when set, authorizes the call instead
// of the API key.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, token *oauth2.Token, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[gotrue.do] encode")
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrap(err, "[gotrue.do] new request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if token == nil && c.apiKey != "" {
		token = &oauth2.Token{AccessToken: c.apiKey, TokenType: "Bearer"}
	}
	if token != nil {
		token.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[gotrue.do] %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "[gotrue.do] read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, out), "[gotrue.do] decode")
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.SignInResult, error) {
	var body sessionBody
	err := c.do(ctx, http.MethodPost, authPath+"/token", url.Values{"grant_type": {"password"}},
		map[string]string{"email": email, "password": password}, nil, &body)
	if err != nil {
		return nil, err
	}
	session := body.toSession(c.nowTime())
	if !session.Valid() {
		return nil, backend.NewAuthError(http.StatusBadGateway, backend.CodeUnexpectedFailure, "Malformed session response")
	}
	if err := c.persist(ctx, session); err != nil {
		return nil, err
	}
	log.Debug().Str("user", session.UserID()).Msg("signed in")
	c.listeners.Notify(backend.EventSignedIn, session)
	result := session.Clone()
	return &backend.SignInResult{Session: result, User: result.User}, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata users.Metadata) (*users.User, error) {
	request := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, authPath+"/signup", nil, request, nil, &raw); err != nil {
		return nil, err
	}

	// With confirmations off the service answers with a session, otherwise with the user.
	var withSession sessionBody
	if err := json.Unmarshal(raw, &withSession); err == nil && withSession.AccessToken != "" {
		if user := withSession.User.toUser(); user != nil {
			return user, nil
		}
	}
	var user userBody
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, errors.Wrap(err, "[gotrue.SignUp] decode user")
	}
	if u := user.toUser(); u != nil {
		return u, nil
	}
	return nil, backend.NewAuthError(http.StatusBadGateway, backend.CodeUnexpectedFailure, "Malformed sign up response")
}

// SignOut revokes sessions at the service. A session the service no longer
// knows is treated as already signed out.
func (c *Client) SignOut(ctx context.Context, scope backend.SignOutScope) error {
	current, err := c.readPersisted(ctx)
	if err != nil {
		log.Err(err).Msg("[gotrue.SignOut] unreadable persisted session")
	}

	if current != nil {
		token := &oauth2.Token{AccessToken: current.AccessToken, TokenType: "Bearer"}
		err := c.do(ctx, http.MethodPost, authPath+"/logout", url.Values{"scope": {string(scope)}}, nil, token, nil)
		if err != nil && !sessionGone(err) {
			return err
		}
	}

	if scope == backend.ScopeOthers {
		return nil
	}
	if err := c.store.Remove(ctx, c.storageKey); err != nil {
		return errors.Wrap(err, "[gotrue.SignOut] remove persisted session")
	}
	c.listeners.Notify(backend.EventSignedOut, nil)
	return nil
}

func sessionGone(err error) bool {
	authErr, ok := backend.AsAuthError(err)
	if !ok {
		return false
	}
	switch authErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func (c *Client) ResendConfirmation(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, authPath+"/resend", nil, map[string]string{"type": "signup", "email": email}, nil, nil)
}

// GetCurrentSession returns the persisted session, refreshing it first when
// the access token has expired. A refresh the service refuses discards the
// session. Any other refresh failure, including a 5xx or 429 answer, is
// returned as an error and the persisted session is kept for the next attempt.
func (c *Client) GetCurrentSession(ctx context.Context) (*sessions.Session, error) {
	c.refreshLock.Lock()
	defer c.refreshLock.Unlock()

	current, err := c.readPersisted(ctx)
	if err != nil || current == nil {
		return nil, err
	}
	if !current.Expired(c.nowTime().Add(expiryMargin)) {
		return current, nil
	}

	refreshed, err := c.refresh(ctx, current.RefreshToken)
	if err != nil {
		if refreshRefused(err) {
			log.Debug().Err(err).Msg("[gotrue.GetCurrentSession] discarding persisted session")
			if err := c.store.Remove(ctx, c.storageKey); err != nil {
				return nil, errors.Wrap(err, "[gotrue.GetCurrentSession] remove stale session")
			}
			return nil, nil
		}
		return nil, err
	}
	if err := c.persist(ctx, refreshed); err != nil {
		return nil, err
	}
	c.listeners.Notify(backend.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// refreshRefused reports whether the service turned the refresh token down,
// as opposed to failing to answer.
func refreshRefused(err error) bool {
	authErr, ok := backend.AsAuthError(err)
	if !ok {
		return false
	}
	if authErr.Code == backend.CodeRefreshTokenNotFound {
		return true
	}
	switch authErr.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*sessions.Session, error) {
	if refreshToken == "" {
		return nil, backend.NewAuthError(http.StatusBadRequest, backend.CodeRefreshTokenNotFound, "Refresh token missing")
	}
	var body sessionBody
	err := c.do(ctx, http.MethodPost, authPath+"/token", url.Values{"grant_type": {"refresh_token"}},
		map[string]string{"refresh_token": refreshToken}, nil, &body)
	if err != nil {
		return nil, err
	}
	session := body.toSession(c.nowTime())
	if !session.Valid() {
		return nil, backend.NewAuthError(http.StatusBadGateway, backend.CodeUnexpectedFailure, "Malformed session response")
	}
	return session, nil
}

func (c *Client) OnSessionChange(listener backend.ChangeListener) backend.Subscription {
	return c.listeners.Add(listener)
}

// currentToken returns the persisted access token, or nil.
func (c *Client) currentToken(ctx context.Context) *oauth2.Token {
	session, err := c.readPersisted(ctx)
	if err != nil || session == nil {
		return nil
	}
	return &oauth2.Token{AccessToken: session.AccessToken, TokenType: "Bearer", Expiry: session.ExpiresAt}
}

func (c *Client) persist(ctx context.Context, session *sessions.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[gotrue.persist] encode")
	}
	return errors.Wrap(c.store.Set(ctx, c.storageKey, string(data)), "[gotrue.persist] store")
}

func (c *Client) readPersisted(ctx context.Context) (*sessions.Session, error) {
	raw, err := c.store.Get(ctx, c.storageKey)
	if errors.Is(err, apperrors.ErrArtifactNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[gotrue.readPersisted] store")
	}
	var session sessions.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, errors.Wrap(err, "[gotrue.readPersisted] decode")
	}
	if !session.Valid() {
		return nil, nil
	}
	return &session, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("gotrue(%s)", c.baseURL)
}
