// Package wm is the onboarding state machine: it takes the device from
// unconfigured to connected to the cloud, and keeps it there.
package wm

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/asnowfix/fermion/pkg/cloud"
	"github.com/asnowfix/fermion/pkg/cloud/oauth"
	"github.com/asnowfix/fermion/pkg/wm/config"
	"github.com/asnowfix/fermion/pkg/wm/wifi"
)

const (
	DefaultConfigTimeout = 60 * time.Second
	DefaultJoinTimeout   = 30 * time.Second
	DefaultHTTPTimeout   = 3 * time.Second

	HeartbeatEvent = "heartbeat"
)

type ConfigStore interface {
	Load() bool
	Provisioned() bool
	Credentials() []config.Credential
}

type PortalFlag interface {
	Forced() (forced, persistent bool)
	Set(persistent bool) error
	Clear() error
}

type TokenStore interface {
	HasRefreshToken() bool
	DeleteRefreshToken() error
}

type TokenManager interface {
	FetchUserCode(ctx context.Context, timeout time.Duration) bool
	FetchAccessToken(ctx context.Context, deviceCode string, timeout time.Duration) oauth.Result
	DeviceCode() string
	UserCode() string
	VerificationURI() string
	Interval() time.Duration
	HasAccessToken() bool
	DiscardAccessToken()
}

type Cloud interface {
	Connect(ctx context.Context) bool
	IsConnected() bool
	Process()
	Publish(name string, payload []byte, flags cloud.PublishFlags) bool
}

type Options struct {
	Intervals     Intervals
	ConfigTimeout time.Duration
	JoinTimeout   time.Duration
	HTTPTimeout   time.Duration
	// Now is the clock, time.Now when nil.
	Now func() time.Time
	// OnTransition is called after each state change, from the tick goroutine.
	OnTransition func(from, to State)
}

type Manager struct {
	log     logr.Logger
	opts    Options
	config  ConfigStore
	portal  PortalFlag
	tokens  TokenStore
	auth    TokenManager
	cloud   Cloud
	station wifi.Station

	state       atomic.Int32
	started     time.Time
	stateSince  time.Time
	lastCheck   time.Time
	deviceCode  string
	holdPortal  bool
	configSaved atomic.Bool
	// ran marks the states whose action already ran in the current tick.
	ran uint8
}

func New(log logr.Logger, cfg ConfigStore, portal PortalFlag, tokens TokenStore, auth TokenManager, c Cloud, station wifi.Station, opts Options) *Manager {
	if opts.Intervals == (Intervals{}) {
		opts.Intervals = DefaultIntervals
	}
	if opts.ConfigTimeout <= 0 {
		opts.ConfigTimeout = DefaultConfigTimeout
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = DefaultJoinTimeout
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = DefaultHTTPTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		log:     log.WithName("wm"),
		opts:    opts,
		config:  cfg,
		portal:  portal,
		tokens:  tokens,
		auth:    auth,
		cloud:   c,
		station: station,
	}
	m.state.Store(int32(Unknown))
	return m
}

// State may be called from any goroutine.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) UserCode() string        { return m.auth.UserCode() }
func (m *Manager) VerificationURI() string { return m.auth.VerificationURI() }

// Uptime is the time since Begin.
func (m *Manager) Uptime() time.Duration {
	if m.started.IsZero() {
		return 0
	}
	return m.opts.Now().Sub(m.started)
}

// ConfigSaved tells the state machine that the web form saved a new
// configuration. It may be called from any goroutine; the next Tick acts on it.
func (m *Manager) ConfigSaved() {
	m.configSaved.Store(true)
}

// Begin decides, once at boot, between the configuration portal and a
// direct connection with the stored configuration and refresh token.
func (m *Manager) Begin(ctx context.Context) {
	now := m.opts.Now()
	m.started = now
	m.ran = 0

	loaded := m.config.Load()
	forced, persistent := m.portal.Forced()
	if forced && !persistent {
		if err := m.portal.Clear(); err != nil {
			m.log.Error(err, "Clearing forced portal flag")
		}
	}
	m.holdPortal = forced && persistent

	switch {
	case forced:
		m.log.Info("Configuration portal forced", "persistent", persistent)
		m.enter(ctx, WiFiConfig)
		return
	case !loaded || !m.config.Provisioned():
		m.log.Info("No usable configuration")
		m.enter(ctx, WiFiConfig)
		return
	}

	if m.fastPath(ctx) {
		m.enter(ctx, Ready)
		return
	}
	// the chain just failed: wait one interval before retrying from CONNECTING
	m.set(Connecting)
}

func (m *Manager) fastPath(ctx context.Context) bool {
	if !m.join(ctx) {
		return false
	}
	if !m.tokens.HasRefreshToken() {
		m.log.Info("Not authorized yet")
		return false
	}
	if r := m.auth.FetchAccessToken(ctx, "", m.opts.HTTPTimeout); r != oauth.OK {
		m.log.Info("Refreshing access token failed", "result", r.String())
		if r == oauth.InvalidRefreshToken {
			m.deleteRefreshToken()
		}
		return false
	}
	return m.cloud.Connect(ctx)
}

// Tick runs one non-blocking step. Call it repeatedly from a single goroutine.
// Before Begin it only drains cloud events.
func (m *Manager) Tick(ctx context.Context) {
	m.cloud.Process()
	if m.State() == Unknown {
		return
	}
	m.ran = 0

	if m.configSaved.Swap(false) {
		m.log.Info("Configuration saved")
		m.holdPortal = false
		if err := m.portal.Clear(); err != nil {
			m.log.Error(err, "Clearing forced portal flag")
		}
		if m.State() == WiFiConfig {
			m.enter(ctx, Connecting)
			return
		}
	}

	now := m.opts.Now()
	if now.Sub(m.lastCheck) < m.interval(m.State()) {
		return
	}
	m.lastCheck = now
	m.step(ctx)
}

func (m *Manager) interval(s State) time.Duration {
	d := m.opts.Intervals.of(s)
	if s == FetchToken && m.deviceCode != "" {
		if server := m.auth.Interval(); server > d {
			d = server
		}
	}
	return d
}

// set changes state without running the new state's action.
func (m *Manager) set(s State) {
	from := m.State()
	now := m.opts.Now()
	m.state.Store(int32(s))
	m.stateSince = now
	m.lastCheck = now
	if from != s {
		m.log.Info("State changed", "from", from.String(), "to", s.String())
		if m.opts.OnTransition != nil {
			m.opts.OnTransition(from, s)
		}
	}
}

func (m *Manager) enter(ctx context.Context, s State) {
	m.set(s)
	if s.immediate() && m.ran&(1<<s) == 0 {
		m.step(ctx)
	}
}

func (m *Manager) step(ctx context.Context) {
	s := m.State()
	m.ran |= 1 << s
	switch s {
	case WiFiConfig:
		m.wifiConfig(ctx)
	case Connecting:
		m.connecting(ctx)
	case FetchCode:
		m.fetchCode(ctx)
	case FetchToken:
		m.fetchToken(ctx)
	case Ready:
		m.ready(ctx)
	}
}

func (m *Manager) wifiConfig(ctx context.Context) {
	if m.holdPortal {
		return
	}
	if m.opts.Now().Sub(m.stateSince) >= m.opts.ConfigTimeout && m.config.Provisioned() {
		m.log.Info("Configuration portal timed out, retrying stored configuration")
		m.enter(ctx, Connecting)
	}
}

func (m *Manager) join(ctx context.Context) bool {
	creds := m.config.Credentials()
	if len(creds) == 0 {
		return false
	}
	wc := make([]wifi.Credential, 0, len(creds))
	for _, c := range creds {
		wc = append(wc, wifi.Credential{SSID: c.SSID, Password: c.Password})
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.JoinTimeout)
	defer cancel()
	if err := m.station.Join(ctx, wc); err != nil {
		m.log.Info("Joining WiFi failed", "error", err)
		return false
	}
	return true
}

func (m *Manager) connecting(ctx context.Context) {
	if !m.config.Provisioned() {
		m.enter(ctx, WiFiConfig)
		return
	}
	if !m.join(ctx) {
		return
	}
	if m.tokens.HasRefreshToken() {
		m.deviceCode = ""
		m.enter(ctx, FetchToken)
		return
	}
	m.enter(ctx, FetchCode)
}

func (m *Manager) fetchCode(ctx context.Context) {
	if !m.auth.FetchUserCode(ctx, m.opts.HTTPTimeout) {
		if !m.station.Connected() {
			m.enter(ctx, Connecting)
		}
		return
	}
	m.deviceCode = m.auth.DeviceCode()
	m.log.Info("Waiting for authorization", "user_code", m.auth.UserCode(), "verification_uri", m.auth.VerificationURI())
	m.enter(ctx, FetchToken)
}

func (m *Manager) fetchToken(ctx context.Context) {
	r := m.auth.FetchAccessToken(ctx, m.deviceCode, m.opts.HTTPTimeout)
	switch r {
	case oauth.OK:
		m.deviceCode = ""
		if !m.cloud.Connect(ctx) {
			m.log.Info("Cloud connection failed, retrying from READY")
		}
		m.enter(ctx, Ready)
	case oauth.CodeNotVerifiedYet:
		m.log.V(1).Info("Authorization pending")
	case oauth.CodeExpired, oauth.CannotLoadRefreshToken:
		m.log.Info("Restarting authorization", "result", r.String())
		m.deviceCode = ""
		m.enter(ctx, FetchCode)
	case oauth.InvalidRefreshToken:
		m.deleteRefreshToken()
		m.deviceCode = ""
		m.enter(ctx, FetchCode)
	case oauth.RequestFailed:
		if !m.station.Connected() {
			m.enter(ctx, Connecting)
		}
	default:
		m.log.Info("Token request failed", "result", r.String())
	}
}

func (m *Manager) deleteRefreshToken() {
	if err := m.tokens.DeleteRefreshToken(); err != nil {
		m.log.Error(err, "Deleting refresh token")
	}
}

type heartbeat struct {
	Uptime int64 `json:"uptime"`
}

func (m *Manager) ready(ctx context.Context) {
	if m.cloud.IsConnected() {
		hb, _ := json.Marshal(heartbeat{Uptime: int64(m.Uptime() / time.Second)})
		m.cloud.Publish(HeartbeatEvent, hb, 0)
		return
	}
	if m.auth.HasAccessToken() {
		if m.cloud.Connect(ctx) {
			m.log.Info("Reconnected")
			return
		}
		m.auth.DiscardAccessToken()
	}
	m.deviceCode = ""
	m.enter(ctx, FetchToken)
}
