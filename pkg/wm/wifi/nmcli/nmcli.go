// Package nmcli drives the WiFi radio of a Linux host through the
// NetworkManager command line.
package nmcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/jackpal/gateway"

	"github.com/asnowfix/fermion/pkg/wm/wifi"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type Station struct {
	log    logr.Logger
	ifname string
	run    Runner
	// Gateway is probed after a successful join; nil disables the probe.
	Gateway func() (net.IP, error)
}

var _ wifi.Station = (*Station)(nil)

// New returns a station on ifname, or on the first WiFi device when ifname is empty.
func New(log logr.Logger, ifname string) *Station {
	return NewWithRunner(log, ifname, execRunner)
}

func NewWithRunner(log logr.Logger, ifname string, run Runner) *Station {
	return &Station{
		log:     log.WithName("nmcli"),
		ifname:  ifname,
		run:     run,
		Gateway: gateway.DiscoverGateway,
	}
}

func (s *Station) nmcli(ctx context.Context, args ...string) ([]byte, error) {
	return s.run(ctx, "nmcli", args...)
}

func (s *Station) Scan(ctx context.Context) ([]wifi.Network, error) {
	args := []string{"-t", "-f", "SSID,BSSID,SIGNAL,CHAN,SECURITY", "device", "wifi", "list", "--rescan", "yes"}
	if s.ifname != "" {
		args = append(args, "ifname", s.ifname)
	}
	out, err := s.nmcli(ctx, args...)
	if err != nil {
		return nil, err
	}
	var nets []wifi.Network
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := splitTerse(line)
		if len(f) < 5 {
			s.log.V(1).Info("Skipping malformed scan line", "line", line)
			continue
		}
		signal, _ := strconv.Atoi(f[2])
		channel, _ := strconv.Atoi(f[3])
		nets = append(nets, wifi.Network{
			SSID:    f[0],
			BSSID:   f[1],
			RSSI:    SignalToRSSI(signal),
			Channel: channel,
			Secure:  f[4] != "" && f[4] != "--",
		})
	}
	s.log.V(1).Info("Scanned", "count", len(nets))
	return nets, nil
}

// SignalToRSSI inverts wifi.Quality for NetworkManager's 0..100 signal.
func SignalToRSSI(signal int) int {
	return signal/2 - 100
}

// Join tries each credential in order and stops at the first one that
// NetworkManager activates.
func (s *Station) Join(ctx context.Context, creds []wifi.Credential) error {
	if len(creds) == 0 {
		return errors.New("nmcli: no credentials")
	}
	var errs []error
	for _, c := range creds {
		args := []string{"device", "wifi", "connect", c.SSID, "password", c.Password}
		if s.ifname != "" {
			args = append(args, "ifname", s.ifname)
		}
		s.log.Info("Joining", "ssid", c.SSID)
		if _, err := s.nmcli(ctx, args...); err != nil {
			errs = append(errs, fmt.Errorf("joining %s: %w", c.SSID, redact(err, c.Password)))
			continue
		}
		s.logGateway()
		return nil
	}
	return errors.Join(errs...)
}

// redact hides password from err, since the failing command line is part of
// the message.
func redact(err error, password string) error {
	if password == "" || !strings.Contains(err.Error(), password) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), password, "*******"))
}

func (s *Station) logGateway() {
	if s.Gateway == nil {
		return
	}
	gw, err := s.Gateway()
	if err != nil {
		s.log.Info("No default gateway yet", "error", err)
		return
	}
	s.log.Info("Joined", "gateway", gw.String())
}

func (s *Station) Connected() bool {
	out, err := s.nmcli(context.Background(), "-t", "-f", "DEVICE,TYPE,STATE", "device")
	if err != nil {
		s.log.V(1).Info("Listing devices", "error", err)
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		f := splitTerse(line)
		if len(f) < 3 || f[1] != "wifi" {
			continue
		}
		if s.ifname != "" && f[0] != s.ifname {
			continue
		}
		if f[2] == "connected" {
			return true
		}
	}
	return false
}

func (s *Station) MAC() (net.HardwareAddr, error) {
	name := s.ifname
	if name == "" {
		out, err := s.nmcli(context.Background(), "-t", "-f", "DEVICE,TYPE", "device")
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(string(out), "\n") {
			if f := splitTerse(line); len(f) >= 2 && f[1] == "wifi" {
				name = f[0]
				break
			}
		}
		if name == "" {
			return nil, errors.New("nmcli: no wifi device")
		}
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return iface.HardwareAddr, nil
}

// splitTerse splits a terse nmcli line on ':' honouring the '\:' and '\\'
// escapes.
func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	return append(fields, cur.String())
}
