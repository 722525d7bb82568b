package config

import (
	"encoding/binary"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/asnowfix/fermion/pkg/flash"
)

const (
	PortalPrimaryFile = "wm_cp.dat"
	PortalBackupFile  = "wm_cp.bak"

	// ForceOnce forces the configuration portal at the next boot only.
	ForceOnce uint32 = 0xDEADBEEF
	// ForcePersistent forces the configuration portal until a configuration is saved.
	ForcePersistent uint32 = 0xBEEFDEAD
)

// PortalFlag is the persisted request to enter the configuration portal at boot.
type PortalFlag struct {
	log  logr.Logger
	pair flash.Pair
}

func NewPortalFlag(log logr.Logger, fs afero.Fs) *PortalFlag {
	return &PortalFlag{
		log:  log.WithName("portal-flag"),
		pair: flash.NewPair(fs, PortalPrimaryFile, PortalBackupFile),
	}
}

// Forced reports whether the portal is requested, and whether the request
// survives reboots.
func (p *PortalFlag) Forced() (forced bool, persistent bool) {
	data, err := p.pair.LoadFunc(func(b []byte) bool { return len(b) == 4 })
	if err != nil {
		return false, false
	}
	switch binary.LittleEndian.Uint32(data) {
	case ForceOnce:
		return true, false
	case ForcePersistent:
		return true, true
	default:
		return false, false
	}
}

func (p *PortalFlag) Set(persistent bool) error {
	v := ForceOnce
	if persistent {
		v = ForcePersistent
	}
	p.log.Info("Forcing configuration portal", "persistent", persistent)
	return p.pair.Save(binary.LittleEndian.AppendUint32(nil, v))
}

func (p *PortalFlag) Clear() error {
	if !p.pair.Exists() {
		return nil
	}
	p.log.V(1).Info("Clearing configuration portal flag")
	return p.pair.Remove()
}
