package wm

import (
	"strings"

	"github.com/asnowfix/fermion/pkg/cloud"
)

// Registrar is the capability side of the cloud client.
type Registrar interface {
	Function(name string, fn cloud.FunctionHandler) bool
	Variable(name string, get cloud.Getter) bool
}

// Register exposes the device's own functions and variables:
//   - reset: force the configuration portal at next boot ("persistent" to
//     keep it until a configuration is saved); returns 0, or -1 on failure
//   - uptime: seconds since boot
//   - ssid: the preferred configured network
//   - state: the onboarding state
func (m *Manager) Register(r Registrar) bool {
	ok := r.Function("reset", func(params string) int {
		persistent := strings.TrimSpace(params) == "persistent"
		if err := m.portal.Set(persistent); err != nil {
			m.log.Error(err, "Forcing configuration portal")
			return -1
		}
		return 0
	})
	ok = r.Variable("uptime", func() any { return int64(m.Uptime().Seconds()) }) && ok
	ok = r.Variable("ssid", func() any {
		if creds := m.config.Credentials(); len(creds) > 0 {
			return creds[0].SSID
		}
		return ""
	}) && ok
	ok = r.Variable("state", func() any { return m.State().String() }) && ok
	return ok
}
