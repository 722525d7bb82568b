package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asnowfix/fermion/pkg/wm"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	v, err := NewViper("")
	require.NoError(t, err)
	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/fermion", c.Storage.Dir)
	assert.Equal(t, "ESP32_WM", c.Device.BoardType)
	assert.Equal(t, "fermi-device", c.Cloud.ClientID)
	assert.Equal(t, []string{"openid"}, c.Scopes())
	assert.Equal(t, 3*time.Second, c.Cloud.HTTPTimeout)
	assert.Equal(t, 10, c.Cloud.Capacity)
	assert.Equal(t, wm.DefaultIntervals, c.WM.Intervals)
	assert.Equal(t, 100*time.Millisecond, c.WM.Tick)
	assert.Equal(t, 10, c.WM.MaxSSIDInList)
	assert.Equal(t, ":80", c.Portal.Listen)
	assert.True(t, c.Broker.MDNS)
}

func TestFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "fermion.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
storage:
  dir: /tmp/flash
cloud:
  broker: zeroconf
wm:
  intervals:
    fetch_token: 2s
`), 0600))
	t.Setenv("FERMION_DEVICE_ID", "bench-1")
	t.Setenv("FERMION_WM_TICK", "50ms")

	v, err := NewViper(file)
	require.NoError(t, err)
	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/flash", c.Storage.Dir)
	assert.Equal(t, "zeroconf", c.Cloud.Broker)
	assert.Equal(t, 2*time.Second, c.WM.Intervals.FetchToken)
	assert.Equal(t, wm.DefaultIntervals.Ready, c.WM.Intervals.Ready)
	assert.Equal(t, "bench-1", c.Device.ID)
	assert.Equal(t, 50*time.Millisecond, c.WM.Tick)
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	v, err := NewViper("")
	require.NoError(t, err)
	v.Set("cloud.token_url", "not a url")
	v.Set("wm.min_quality", 120)
	v.Set("cloud.capacity", 0)

	_, err = Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud.token_url")
	assert.Contains(t, err.Error(), "wm.min_quality")
	assert.Contains(t, err.Error(), "cloud.capacity")
}

func TestFlash(t *testing.T) {
	c := &Config{Storage: StorageConfig{Dir: filepath.Join(t.TempDir(), "flash")}}
	fs, err := c.Flash()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(c.Storage.Dir, "wm_token.dat"), []byte("x"), 0600))
	ok, err := afero.Exists(fs, "/wm_token.dat")
	require.NoError(t, err)
	assert.True(t, ok)
}
