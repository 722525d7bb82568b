package wifi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asnowfix/fermion/pkg/wm/wifi"
)

func TestEntries(t *testing.T) {
	nets := []wifi.Network{
		{SSID: "office", RSSI: -80},
		{SSID: "home", RSSI: -50, Secure: true},
		{SSID: "home", RSSI: -60},
	}
	ranked := wifi.Rank(nets, 0, true)

	kept := entries(nets, ranked, false)
	require.Len(t, kept, 2)
	assert.Equal(t, "home", kept[0].SSID)
	assert.Equal(t, 100, kept[0].Quality)
	assert.True(t, kept[0].Secure)
	assert.Equal(t, "office", kept[1].SSID)

	all := entries(nets, ranked, true)
	require.Len(t, all, 3)
	assert.Equal(t, "duplicate", all[2].Skip)
}
