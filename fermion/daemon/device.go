package daemon

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/hlog"
	"github.com/asnowfix/fermion/internal/global"
	"github.com/asnowfix/fermion/internal/portal"
	"github.com/asnowfix/fermion/pkg/cloud"
	"github.com/asnowfix/fermion/pkg/cloud/oauth"
	"github.com/asnowfix/fermion/pkg/wm"
	"github.com/asnowfix/fermion/pkg/wm/config"
	"github.com/asnowfix/fermion/pkg/wm/token"
	"github.com/asnowfix/fermion/pkg/wm/wifi"
	"github.com/asnowfix/fermion/pkg/wm/wifi/nmcli"
)

const scanTimeout = 10 * time.Second

// Device holds every component of the agent, wired from the configuration.
type Device struct {
	log     logr.Logger
	ctx     context.Context
	tick    time.Duration
	manager *wm.Manager
	client  *cloud.Client
	portal  *portalServer

	scan     func(ctx context.Context) []string
	networks atomic.Pointer[[]string]
	scans    sync.WaitGroup
}

func trustedRoots(file string) (*tls.Config, error) {
	if file == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading trusted roots: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%s: no certificate found", file)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// deviceID is the configured id, else the station hostname.
func deviceID(log logr.Logger, configured string, station wifi.Station) string {
	if configured != "" {
		return configured
	}
	mac, err := station.MAC()
	if err == nil && len(mac) >= 3 {
		return wifi.Hostname(mac)
	}
	log.Error(err, "No station MAC address, using the host name")
	host, _ := os.Hostname()
	if id := wifi.RFC952(host); id != "" {
		return id
	}
	return wifi.HostnamePrefix
}

func Build(ctx context.Context, log logr.Logger, cfg *options.Config) (*Device, error) {
	return build(ctx, log, cfg, nmcli.New(log, cfg.WM.Interface))
}

func build(ctx context.Context, log logr.Logger, cfg *options.Config, station wifi.Station) (*Device, error) {
	flash, err := cfg.Flash()
	if err != nil {
		return nil, err
	}
	tlsConfig, err := trustedRoots(cfg.Cloud.CAFile)
	if err != nil {
		return nil, err
	}

	store := config.NewStore(log, flash, config.WithBoardType(cfg.Device.BoardType))
	store.Load()
	flag := config.NewPortalFlag(log, flash)
	tokens := token.NewStore(log, flash)

	httpClient := &http.Client{Transport: &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsConfig,
	}}
	auth := oauth.NewManager(log, cfg.Cloud.ClientID, cfg.Scopes(), cfg.Endpoints(), httpClient, tokens)

	id := deviceID(log, cfg.Device.ID, station)
	client, err := cloud.NewClient(log, auth, &cloud.PahoDialer{
		Log:    log,
		Broker: cfg.Cloud.Broker,
		TLS:    tlsConfig,
	}, cloud.Options{
		DeviceID:    id,
		BoardName:   store.BoardName(),
		Version:     global.Version(ctx),
		Capacity:    cfg.Cloud.Capacity,
		HTTPTimeout: cfg.Cloud.HTTPTimeout,
		MQTTTimeout: cfg.Cloud.MQTTTimeout,
	})
	if err != nil {
		return nil, err
	}

	d := &Device{
		log:    log.WithName("device").WithValues("id", id),
		ctx:    ctx,
		tick:   cfg.WM.Tick,
		client: client,
	}
	d.manager = wm.New(log, store, flag, tokens, auth, client, station, wm.Options{
		Intervals:     cfg.WM.Intervals,
		ConfigTimeout: cfg.WM.ConfigTimeout,
		HTTPTimeout:   cfg.Cloud.HTTPTimeout,
		OnTransition:  d.transition,
	})
	if !d.manager.Register(client) {
		client.Close()
		return nil, fmt.Errorf("registering built-in capabilities: %w", cloud.ErrCapacity)
	}

	ranker := &wifi.Ranker{
		Log:              log.WithName("ranker"),
		Station:          station,
		MinQuality:       cfg.WM.MinQuality,
		RemoveDuplicates: true,
	}
	d.scan = func(ctx context.Context) []string {
		ctx, cancel := context.WithTimeout(ctx, scanTimeout)
		defer cancel()
		nets, ranked, err := ranker.Scan(ctx)
		if err != nil {
			hlog.ErrorIfNotCanceled(d.log, err, "Scanning WiFi networks")
			return nil
		}
		return wifi.Visible(nets, ranked, cfg.WM.MaxSSIDInList)
	}
	handler := portal.NewHandler(log, store, d.manager, id)
	handler.Networks = d.Networks
	d.portal = newPortalServer(log, cfg.Portal.Listen, handler)
	return d, nil
}

func (d *Device) Manager() *wm.Manager { return d.manager }

// Networks is the result of the last scan, taken when the portal opened.
func (d *Device) Networks() []string {
	if p := d.networks.Load(); p != nil {
		return *p
	}
	return nil
}

// rescan refreshes Networks in the background; the tick loop never waits
// for the radio.
func (d *Device) rescan() {
	d.scans.Add(1)
	go func() {
		defer d.scans.Done()
		list := d.scan(d.ctx)
		d.log.V(1).Info("Visible networks", "ssids", list)
		d.networks.Store(&list)
	}()
}

// transition runs on the tick goroutine.
func (d *Device) transition(from, to wm.State) {
	switch {
	case to == wm.WiFiConfig:
		d.rescan()
		if err := d.portal.Start(); err != nil {
			d.log.Error(err, "Starting configuration portal")
		}
	case from == wm.WiFiConfig:
		d.portal.Stop()
	}
	if to == wm.FetchToken && from != wm.FetchToken {
		if code := d.manager.UserCode(); code != "" {
			d.log.Info("Waiting for user authorization", "user_code", code, "verification_uri", d.manager.VerificationURI())
		}
	}
}

// Run boots the state machine and ticks it until ctx is cancelled.
func (d *Device) Run(ctx context.Context) error {
	defer d.scans.Wait()
	defer d.client.Close()
	defer d.portal.Stop()

	d.manager.Begin(ctx)
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.manager.Tick(ctx)
		}
	}
}
