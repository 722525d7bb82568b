// Package oauth obtains cloud credentials through the OAuth 2.0 device
// authorization grant (RFC 8628) and keeps the refresh token on flash.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/oauth2"
)

const DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

type TokenStore interface {
	HasRefreshToken() bool
	LoadRefreshToken() (string, bool)
	SaveRefreshToken(token string) error
	DeleteRefreshToken() error
}

type Endpoints struct {
	DeviceAuthURL string
	TokenURL      string
	UserInfoURL   string
}

// Manager runs single token requests. It never retries: the caller owns the
// polling and backoff policy.
type Manager struct {
	log         logr.Logger
	conf        *oauth2.Config
	userInfoURL string
	client      *http.Client
	store       TokenStore

	mu              sync.Mutex
	deviceCode      string
	userCode        string
	verificationURI string
	interval        time.Duration
	accessToken     string
}

// NewManager returns a manager posting credentials in the request body,
// through client (http.DefaultClient when nil).
func NewManager(log logr.Logger, clientID string, scopes []string, ep Endpoints, client *http.Client, store TokenStore) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		log: log.WithName("oauth"),
		conf: &oauth2.Config{
			ClientID: clientID,
			Scopes:   scopes,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: ep.DeviceAuthURL,
				TokenURL:      ep.TokenURL,
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: ep.UserInfoURL,
		client:      client,
		store:       store,
	}
}

func (m *Manager) context(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// FetchUserCode requests a new device code and user code pair.
func (m *Manager) FetchUserCode(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := m.context(ctx, timeout)
	defer cancel()

	da, err := m.conf.DeviceAuth(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			code, desc := errorFields(re)
			m.log.Info("Device authorization refused", "status", status(re), "error", code, "error_description", desc)
		} else {
			m.log.Info("Device authorization request failed", "error", err)
		}
		return false
	}
	if da.DeviceCode == "" || da.UserCode == "" {
		m.log.Info("Device authorization response without codes")
		return false
	}

	uri := da.VerificationURIComplete
	if uri == "" {
		uri = da.VerificationURI
	}
	m.mu.Lock()
	m.deviceCode = da.DeviceCode
	m.userCode = da.UserCode
	m.verificationURI = uri
	m.interval = time.Duration(da.Interval) * time.Second
	m.mu.Unlock()

	m.log.Info("Got user code", "user_code", da.UserCode, "verification_uri", uri, "expiry", da.Expiry)
	return true
}

// FetchAccessToken exchanges deviceCode for tokens, or refreshes with the
// stored refresh token when deviceCode is empty. On success the access token
// is kept in memory and the rotated refresh token replaces the stored one.
func (m *Manager) FetchAccessToken(ctx context.Context, deviceCode string, timeout time.Duration) Result {
	refresh := deviceCode == ""
	var refreshToken string
	if refresh {
		var ok bool
		if refreshToken, ok = m.store.LoadRefreshToken(); !ok {
			return CannotLoadRefreshToken
		}
	}

	ctx, cancel := m.context(ctx, timeout)
	defer cancel()

	var tok *oauth2.Token
	var err error
	if refresh {
		tok, err = m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	} else {
		tok, err = m.conf.Exchange(ctx, "",
			oauth2.SetAuthURLParam("grant_type", DeviceCodeGrantType),
			oauth2.SetAuthURLParam("device_code", deviceCode),
		)
	}
	if err != nil {
		r := m.classifyError(err, refresh)
		m.log.Info("Token request failed", "refresh", refresh, "result", r.String(), "error", err)
		return r
	}

	rt := tok.RefreshToken
	if rt == "" {
		m.log.Info("Token response without refresh token")
		return InvalidResponse
	}

	m.mu.Lock()
	m.accessToken = tok.AccessToken
	m.mu.Unlock()

	if err := m.store.SaveRefreshToken(rt); err != nil {
		m.log.Error(err, "Saving rotated refresh token")
	}
	m.log.Info("Got access token", "refresh", refresh, "length", len(tok.AccessToken))
	return OK
}

func (m *Manager) classifyError(err error, refresh bool) Result {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if status(re) != http.StatusBadRequest {
			return InvalidResponse
		}
		code, _ := errorFields(re)
		return classify(code, refresh)
	}
	var ue *url.Error
	if errors.As(err, &ue) || errors.Is(err, context.DeadlineExceeded) {
		return RequestFailed
	}
	return InvalidResponse
}

func status(re *oauth2.RetrieveError) int {
	if re.Response == nil {
		return 0
	}
	return re.Response.StatusCode
}

// errorFields returns the RFC 6749 error fields, parsing the body when the
// library did not.
func errorFields(re *oauth2.RetrieveError) (code, description string) {
	if re.ErrorCode != "" {
		return re.ErrorCode, re.ErrorDescription
	}
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(re.Body, &body) != nil {
		return "", ""
	}
	return body.Error, body.ErrorDescription
}

func (m *Manager) DeviceCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceCode
}

func (m *Manager) UserCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userCode
}

func (m *Manager) VerificationURI() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verificationURI
}

// Interval is the polling interval suggested by the server, zero if none.
func (m *Manager) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

func (m *Manager) HasAccessToken() bool {
	return m.AccessToken() != ""
}

func (m *Manager) DiscardAccessToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessToken = ""
}

// HasRefreshToken reports whether the device completed an authorization
// before.
func (m *Manager) HasRefreshToken() bool {
	return m.store.HasRefreshToken()
}

func (m *Manager) DeleteRefreshToken() error {
	return m.store.DeleteRefreshToken()
}
