package wifi

import (
	"context"
	"net"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuality(t *testing.T) {
	tests := map[int]int{
		-120: 0,
		-100: 0,
		-99:  2,
		-75:  50,
		-51:  98,
		-50:  100,
		-20:  100,
	}
	for rssi, want := range tests {
		if got := Quality(rssi); got != want {
			t.Errorf("Quality(%d) = %d, want %d", rssi, got, want)
		}
	}
}

func TestRankDuplicateSSID(t *testing.T) {
	nets := []Network{{SSID: "A", RSSI: -40}, {SSID: "B", RSSI: -60}, {SSID: "A", RSSI: -45}}
	ranked := Rank(nets, 0, true)

	require.Len(t, ranked, len(nets))
	assert.Equal(t, []Ranked{
		{Index: 0},
		{Index: 1},
		{Index: 2, Skip: true, Reason: Duplicate},
	}, ranked)
	assert.Equal(t, []string{"A", "B"}, Visible(nets, ranked, DefaultMaxSSIDInList))
}

func TestRankKeepsDuplicatesWhenAsked(t *testing.T) {
	nets := []Network{{SSID: "A", RSSI: -40}, {SSID: "B", RSSI: -60}, {SSID: "A", RSSI: -45}}
	ranked := Rank(nets, 0, false)
	assert.Equal(t, []Ranked{{Index: 0}, {Index: 2}, {Index: 1}}, ranked)
}

func TestRankMinQuality(t *testing.T) {
	nets := []Network{
		{SSID: "weak", RSSI: -90},
		{SSID: "strong", RSSI: -55},
		{SSID: "medium", RSSI: -70},
	}
	ranked := Rank(nets, 40, true)
	assert.Equal(t, []Ranked{
		{Index: 1},
		{Index: 2},
		{Index: 0, Skip: true, Reason: LowQuality},
	}, ranked)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil, 0, true))
}

func TestVisibleLimit(t *testing.T) {
	var nets []Network
	for i := 0; i < 15; i++ {
		nets = append(nets, Network{SSID: string(rune('a' + i)), RSSI: -40 - i})
	}
	nets = append(nets, Network{SSID: "", RSSI: -10})
	got := Visible(nets, Rank(nets, 0, true), DefaultMaxSSIDInList)
	assert.Len(t, got, DefaultMaxSSIDInList)
	assert.Equal(t, "a", got[0])
}

type stubStation struct {
	nets []Network
}

func (s stubStation) Scan(context.Context) ([]Network, error)  { return s.nets, nil }
func (s stubStation) Join(context.Context, []Credential) error { return nil }
func (s stubStation) Connected() bool                          { return true }
func (s stubStation) MAC() (net.HardwareAddr, error)           { return nil, nil }

func TestRankerScan(t *testing.T) {
	r := Ranker{
		Log:              testr.New(t),
		Station:          stubStation{nets: []Network{{SSID: "x", RSSI: -80}, {SSID: "y", RSSI: -50}}},
		RemoveDuplicates: true,
	}
	nets, ranked, err := r.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.Equal(t, 1, ranked[0].Index)
}
