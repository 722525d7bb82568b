package cloud

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"
)

// PahoDialer opens sessions with the Eclipse Paho client.
type PahoDialer struct {
	Log logr.Logger
	// Broker is a broker URL (tcp://, ssl://, tls://, ws://, wss://) or
	// "zeroconf" to look one up over mDNS at each dial.
	Broker string
	TLS    *tls.Config
	// Lookup resolves the "zeroconf" broker; LookupBroker when nil.
	Lookup func(ctx context.Context, log logr.Logger) (*url.URL, error)
}

func (d *PahoDialer) broker(ctx context.Context) (*url.URL, error) {
	if d.Broker == ZeroconfBroker {
		lookup := d.Lookup
		if lookup == nil {
			lookup = LookupBroker
		}
		return lookup(ctx, d.Log)
	}
	u, err := url.Parse(d.Broker)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("broker %q: want scheme://host:port", d.Broker)
	}
	return u, nil
}

func secure(u *url.URL) bool {
	switch strings.ToLower(u.Scheme) {
	case "ssl", "tls", "mqtts", "tcps", "wss":
		return true
	}
	return false
}

func (d *PahoDialer) Dial(ctx context.Context, o SessionOptions, post PostFunc) (Session, error) {
	u, err := d.broker(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding broker: %w", err)
	}
	log := d.Log.WithName("paho").WithValues("broker", u.String(), "client_id", o.ClientID)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(u.String())
	opts.SetClientID(o.ClientID)
	opts.SetUsername(o.Username)
	opts.SetPassword(o.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(o.Timeout)
	opts.SetOrderMatters(false)
	if secure(u) {
		cfg := d.TLS
		if cfg == nil {
			cfg = &tls.Config{}
		}
		opts.SetTLSConfig(cfg)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.V(1).Info("Session established")
		post(Event{Kind: Connected})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Info("Session lost", "error", err)
		post(Event{Kind: ConnectionLost, Err: err})
	})
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
		post(Event{Kind: Message, Topic: m.Topic(), Payload: m.Payload(), Duplicate: m.Duplicate()})
	})

	return &pahoSession{
		log:     log,
		client:  mqtt.NewClient(opts),
		timeout: o.Timeout,
	}, nil
}

type pahoSession struct {
	log     logr.Logger
	client  mqtt.Client
	timeout time.Duration
}

var ErrTimeout = errors.New("cloud: transport timeout")

func (s *pahoSession) wait(t mqtt.Token) error {
	if !t.WaitTimeout(s.timeout) {
		return ErrTimeout
	}
	return t.Error()
}

func (s *pahoSession) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("Connecting")
	return s.wait(s.client.Connect())
}

func (s *pahoSession) Subscribe(topic string, qos byte) error {
	return s.wait(s.client.Subscribe(topic, qos, nil))
}

func (s *pahoSession) Unsubscribe(topic string) error {
	return s.wait(s.client.Unsubscribe(topic))
}

func (s *pahoSession) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return s.wait(s.client.Publish(topic, qos, retained, payload))
}

func (s *pahoSession) Close() {
	if s.client.IsConnectionOpen() {
		s.client.Disconnect(250 /* milliseconds */)
	}
}
