package wm

import "time"

type State int32

// Unknown is the state before Begin.
const Unknown State = -1

const (
	Ready State = iota
	WiFiConfig
	Connecting
	FetchCode
	FetchToken
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case WiFiConfig:
		return "WIFI_CONFIG"
	case Connecting:
		return "CONNECTING"
	case FetchCode:
		return "FETCH_CODE"
	case FetchToken:
		return "FETCH_TOKEN"
	default:
		return "UNKNOWN"
	}
}

// immediate states run their action on entry instead of waiting for their
// interval.
func (s State) immediate() bool {
	return s == Connecting || s == FetchToken
}

// Intervals is the minimum time between two evaluations of each state.
type Intervals struct {
	WiFiConfig time.Duration `mapstructure:"wifi_config"`
	Connecting time.Duration `mapstructure:"connecting"`
	FetchCode  time.Duration `mapstructure:"fetch_code"`
	FetchToken time.Duration `mapstructure:"fetch_token"`
	Ready      time.Duration `mapstructure:"ready"`
}

var DefaultIntervals = Intervals{
	WiFiConfig: 1 * time.Second,
	Connecting: 10 * time.Second,
	FetchCode:  5 * time.Second,
	FetchToken: 5 * time.Second,
	Ready:      10 * time.Second,
}

func (i Intervals) of(s State) time.Duration {
	switch s {
	case WiFiConfig:
		return i.WiFiConfig
	case Connecting:
		return i.Connecting
	case FetchCode:
		return i.FetchCode
	case FetchToken:
		return i.FetchToken
	default:
		return i.Ready
	}
}
