// Package broker runs a local MQTT broker standing in for the cloud during
// development, optionally advertised over mDNS so that devices configured
// with the "zeroconf" broker find it.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/grandcat/zeroconf"
	"github.com/spf13/viper"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/hooks/debug"
	"github.com/mochi-mqtt/server/v2/listeners"
)

const (
	DefaultListen = ":1883"
	Service       = "_mqtt._tcp"
	Domain        = "local."
)

type Config struct {
	Listen string
	MDNS   bool
	// Instance is the mDNS instance name, the hostname when empty.
	Instance string
	TXT      []string
}

type Broker struct {
	log    logr.Logger
	server *mochi.Server
	mdns   *zeroconf.Server
}

// options loads the mochi options under broker.mochi, if any.
func options(log logr.Logger, v *viper.Viper) *mochi.Options {
	opts := &mochi.Options{
		Capabilities: mochi.NewDefaultServerCapabilities(),
	}
	if v != nil && v.IsSet("broker.mochi") {
		if err := v.UnmarshalKey("broker.mochi", opts); err != nil {
			log.Error(err, "Failed to unmarshal broker options, using defaults")
		}
	}
	return opts
}

// Start serves MQTT on cfg.Listen with every client allowed. The broker runs
// until Close.
func Start(ctx context.Context, log logr.Logger, cfg Config, v *viper.Viper) (*Broker, error) {
	log = log.WithName("broker")
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}

	opts := options(log, v)
	opts.Logger = slog.New(logr.ToSlogHandler(log))
	opts.InlineClient = true
	server := mochi.New(opts)

	if log.V(2).Enabled() {
		err := server.AddHook(&debug.Hook{
			Log: slog.New(logr.ToSlogHandler(log)),
		}, &debug.Options{
			ShowPacketData: true,
		})
		if err != nil {
			return nil, fmt.Errorf("adding debug hook: %w", err)
		}
	}
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("adding auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "tcp",
		Address: cfg.Listen,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("adding listener %s: %w", cfg.Listen, err)
	}
	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("serving: %w", err)
	}
	log.Info("Listening for MQTT connections", "address", cfg.Listen)

	b := &Broker{log: log, server: server}
	if cfg.MDNS {
		if err := b.advertise(cfg); err != nil {
			_ = server.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Broker) advertise(cfg Config) error {
	_, p, err := net.SplitHostPort(cfg.Listen)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return fmt.Errorf("listen port %q: %w", p, err)
	}
	instance := cfg.Instance
	if instance == "" {
		if instance, err = os.Hostname(); err != nil {
			return err
		}
	}
	b.mdns, err = zeroconf.Register(instance, Service, Domain, port, cfg.TXT, nil)
	if err != nil {
		return fmt.Errorf("registering %s: %w", Service, err)
	}
	b.log.Info("Published broker over mDNS", "instance", instance, "service", Service, "port", port)
	return nil
}

// Server exposes the broker for in-process publishing and subscribing.
func (b *Broker) Server() *mochi.Server {
	return b.server
}

func (b *Broker) Close() error {
	if b.mdns != nil {
		b.mdns.Shutdown()
	}
	b.log.Info("Stopping")
	return b.server.Close()
}
