package wifi

import (
	"github.com/spf13/cobra"

	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/hlog"
	"github.com/asnowfix/fermion/pkg/wm/wifi"
	"github.com/asnowfix/fermion/pkg/wm/wifi/nmcli"
)

var Cmd = &cobra.Command{
	Use:   "wifi",
	Short: "WiFi station tools",
	Args:  cobra.NoArgs,
}

var scanFlags struct {
	All bool
}

func init() {
	Cmd.AddCommand(scanCmd)
	scanCmd.Flags().IntP("min-quality", "q", 0, "hide networks below this signal quality (0-100)")
	scanCmd.Flags().StringP("interface", "i", "", "WiFi device (default: the first one)")
	scanCmd.Flags().BoolVarP(&scanFlags.All, "all", "a", false, "also list duplicate and low quality networks")
}

type entry struct {
	SSID    string `json:"ssid" yaml:"ssid"`
	BSSID   string `json:"bssid,omitempty" yaml:"bssid,omitempty"`
	RSSI    int    `json:"rssi" yaml:"rssi"`
	Quality int    `json:"quality" yaml:"quality"`
	Channel int    `json:"channel,omitempty" yaml:"channel,omitempty"`
	Secure  bool   `json:"secure" yaml:"secure"`
	Skip    string `json:"skip,omitempty" yaml:"skip,omitempty"`
}

func entries(nets []wifi.Network, ranked []wifi.Ranked, all bool) []entry {
	out := make([]entry, 0, len(ranked))
	for _, r := range ranked {
		if r.Skip && !all {
			continue
		}
		n := nets[r.Index]
		e := entry{
			SSID:    n.SSID,
			BSSID:   n.BSSID,
			RSSI:    n.RSSI,
			Quality: wifi.Quality(n.RSSI),
			Channel: n.Channel,
			Secure:  n.Secure,
		}
		if r.Skip {
			e.Skip = r.Reason.String()
		}
		out = append(out, e)
	}
	return out
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan and rank visible networks, strongest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := options.Viper()
		if err != nil {
			return err
		}
		if err := v.BindPFlag("wm.min_quality", cmd.Flags().Lookup("min-quality")); err != nil {
			return err
		}
		if err := v.BindPFlag("wm.interface", cmd.Flags().Lookup("interface")); err != nil {
			return err
		}
		cfg, err := options.Load(v)
		if err != nil {
			return err
		}

		ranker := &wifi.Ranker{
			Log:              hlog.Logger,
			Station:          nmcli.New(hlog.Logger, cfg.WM.Interface),
			MinQuality:       cfg.WM.MinQuality,
			RemoveDuplicates: true,
		}
		nets, ranked, err := ranker.Scan(cmd.Context())
		if err != nil {
			return err
		}
		return options.PrintResult(entries(nets, ranked, scanFlags.All))
	},
}
