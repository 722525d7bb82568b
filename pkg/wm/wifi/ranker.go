package wifi

import (
	"context"
	"sort"

	"github.com/go-logr/logr"
)

const DefaultMaxSSIDInList = 10

// Quality maps a signal strength in dBm to 0..100.
func Quality(rssi int) int {
	switch {
	case rssi <= -100:
		return 0
	case rssi >= -50:
		return 100
	default:
		return 2 * (rssi + 100)
	}
}

type SkipReason uint8

const (
	NotSkipped SkipReason = iota
	Duplicate
	LowQuality
)

func (r SkipReason) String() string {
	switch r {
	case Duplicate:
		return "duplicate"
	case LowQuality:
		return "low-quality"
	default:
		return ""
	}
}

// Ranked points at a scan entry by its original index.
type Ranked struct {
	Index  int
	Skip   bool
	Reason SkipReason
}

// Rank orders nets by descending signal strength. Weaker duplicates of an
// SSID and networks below minQuality are marked Skip and placed after the
// kept entries. The result has exactly len(nets) entries.
func Rank(nets []Network, minQuality int, removeDuplicates bool) []Ranked {
	ranked := make([]Ranked, len(nets))
	for i := range ranked {
		ranked[i].Index = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return nets[ranked[a].Index].RSSI > nets[ranked[b].Index].RSSI
	})

	seen := make(map[string]bool, len(nets))
	for i := range ranked {
		n := nets[ranked[i].Index]
		switch {
		case removeDuplicates && seen[n.SSID]:
			ranked[i].Skip, ranked[i].Reason = true, Duplicate
		case Quality(n.RSSI) < minQuality:
			ranked[i].Skip, ranked[i].Reason = true, LowQuality
		}
		seen[n.SSID] = true
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return !ranked[a].Skip && ranked[b].Skip
	})
	return ranked
}

// Visible returns up to max SSIDs of the kept entries, strongest first.
func Visible(nets []Network, ranked []Ranked, max int) []string {
	ssids := make([]string, 0, max)
	for _, r := range ranked {
		if len(ssids) >= max {
			break
		}
		if r.Skip || nets[r.Index].SSID == "" {
			continue
		}
		ssids = append(ssids, nets[r.Index].SSID)
	}
	return ssids
}

type Ranker struct {
	Log              logr.Logger
	Station          Station
	MinQuality       int
	RemoveDuplicates bool
}

// Scan triggers a scan and ranks its result.
func (r *Ranker) Scan(ctx context.Context) ([]Network, []Ranked, error) {
	nets, err := r.Station.Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	ranked := Rank(nets, r.MinQuality, r.RemoveDuplicates)
	if r.Log.V(1).Enabled() {
		for _, x := range ranked {
			n := nets[x.Index]
			r.Log.V(1).Info("Scanned network", "index", x.Index, "ssid", n.SSID, "rssi", n.RSSI, "quality", Quality(n.RSSI), "skip", x.Reason.String())
		}
	}
	return nets, ranked, nil
}
