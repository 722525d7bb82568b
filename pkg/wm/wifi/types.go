// Package wifi ranks scanned networks for the configuration portal and
// defines the radio the onboarding state machine drives.
package wifi

import (
	"context"
	"net"
)

type Network struct {
	SSID    string `json:"ssid" yaml:"ssid"`
	BSSID   string `json:"bssid,omitempty" yaml:"bssid,omitempty"`
	RSSI    int    `json:"rssi" yaml:"rssi"`
	Channel int    `json:"channel,omitempty" yaml:"channel,omitempty"`
	Secure  bool   `json:"secure" yaml:"secure"`
}

type Credential struct {
	SSID     string
	Password string
}

// Station is the WiFi radio in station mode.
type Station interface {
	Scan(ctx context.Context) ([]Network, error)
	// Join tries each credential in order until one associates.
	Join(ctx context.Context, creds []Credential) error
	Connected() bool
	MAC() (net.HardwareAddr, error)
}
