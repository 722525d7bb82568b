package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asnowfix/fermion/internal/portal"
	wmconfig "github.com/asnowfix/fermion/pkg/wm/config"
)

func TestCredentials(t *testing.T) {
	setFlags.SSID, setFlags.Password = "home", "short"
	_, err := credentials()
	assert.ErrorIs(t, err, ErrNotUsable)

	setFlags.Password = "long-enough"
	setFlags.SSID1, setFlags.Password1 = "office", "another-one"
	creds, err := credentials()
	require.NoError(t, err)
	assert.Equal(t, "office", creds[1].SSID)
}

func TestViewHidesPasswords(t *testing.T) {
	c := wmconfig.Zero(wmconfig.DefaultBoardType)
	c.WiFi[0] = wmconfig.Credential{SSID: "home", Password: "long-enough"}
	c.BoardName = "kitchen"

	v := newView(true, c)
	assert.True(t, v.Provisioned)
	assert.Equal(t, "kitchen", v.BoardName)
	require.Len(t, v.WiFi, 2)
	assert.Equal(t, portal.Obfuscated, v.WiFi[0].Password)
	assert.True(t, v.WiFi[0].Usable)
	assert.Empty(t, v.WiFi[1].Password)
	assert.False(t, v.WiFi[1].Usable)
}
