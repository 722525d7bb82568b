package wifi

import (
	"net"
	"testing"
)

func TestHostname(t *testing.T) {
	mac := net.HardwareAddr{0x24, 0x0a, 0xc4, 0x12, 0xab, 0x0f}
	if got := Hostname(mac); got != "FERMION-12AB0F" {
		t.Errorf("got %q", got)
	}
	if got := Hostname(nil); got != "FERMION" {
		t.Errorf("got %q", got)
	}
}

func TestRFC952(t *testing.T) {
	tests := map[string]string{
		"FERMION-12AB0F":                 "FERMION-12AB0F",
		"my device_01!":                  "mydevice01",
		"-9lives":                        "lives",
		"trailing--":                     "trailing",
		"abcdefghijklmnopqrstuvwxyz0123": "abcdefghijklmnopqrstuvwx",
		"":                               "",
	}
	for in, want := range tests {
		if got := RFC952(in); got != want {
			t.Errorf("RFC952(%q) = %q, want %q", in, got, want)
		}
	}
}
