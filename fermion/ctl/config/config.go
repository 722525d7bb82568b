package config

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/asnowfix/fermion/fermion/ctl"
	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/hlog"
	"github.com/asnowfix/fermion/internal/portal"
	wmconfig "github.com/asnowfix/fermion/pkg/wm/config"
)

var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the stored device configuration",
	Args:  cobra.NoArgs,
}

var setFlags struct {
	SSID      string
	Password  string
	SSID1     string
	Password1 string
	Name      string
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(clearCmd)
	Cmd.AddCommand(setCmd)

	setCmd.Flags().StringVar(&setFlags.SSID, "ssid", "", "preferred network")
	setCmd.Flags().StringVar(&setFlags.Password, "password", "", "preferred network password")
	setCmd.Flags().StringVar(&setFlags.SSID1, "ssid1", "", "fallback network")
	setCmd.Flags().StringVar(&setFlags.Password1, "password1", "", "fallback network password")
	setCmd.Flags().StringVar(&setFlags.Name, "name", "", "board name")
	_ = setCmd.MarkFlagRequired("ssid")
}

type network struct {
	SSID     string `json:"ssid" yaml:"ssid"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Usable   bool   `json:"usable" yaml:"usable"`
}

type view struct {
	Valid       bool      `json:"valid" yaml:"valid"`
	Provisioned bool      `json:"provisioned" yaml:"provisioned"`
	Header      string    `json:"header" yaml:"header"`
	BoardName   string    `json:"board_name" yaml:"board_name"`
	WiFi        []network `json:"wifi" yaml:"wifi"`
}

func newView(valid bool, c wmconfig.Configuration) view {
	v := view{
		Valid:       valid,
		Provisioned: c.Provisioned(),
		Header:      c.Header,
		BoardName:   c.BoardName,
	}
	for _, w := range c.WiFi {
		n := network{SSID: w.SSID, Usable: w.Usable()}
		if w.Password != "" {
			n.Password = portal.Obfuscated
		}
		v.WiFi = append(v.WiFi, n)
	}
	return v
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored configuration, passwords hidden",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := ctl.ConfigStore(hlog.Logger)
		if err != nil {
			return err
		}
		valid := store.Load()
		return options.PrintResult(newView(valid, store.Record()))
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase the stored configuration (both copies)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := ctl.ConfigStore(hlog.Logger)
		if err != nil {
			return err
		}
		return store.Clear()
	},
}

var ErrNotUsable = errors.New("preferred network is not usable: empty SSID or password shorter than 8 characters")

func credentials() ([wmconfig.NumCredentials]wmconfig.Credential, error) {
	creds := [wmconfig.NumCredentials]wmconfig.Credential{
		{SSID: setFlags.SSID, Password: setFlags.Password},
		{SSID: setFlags.SSID1, Password: setFlags.Password1},
	}
	if !creds[0].Usable() {
		return creds, ErrNotUsable
	}
	return creds, nil
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Store WiFi credentials and board name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := credentials()
		if err != nil {
			return err
		}
		store, err := ctl.ConfigStore(hlog.Logger)
		if err != nil {
			return err
		}
		store.Load()
		if err := store.SetCredentials(creds, setFlags.Name); err != nil {
			return err
		}
		return options.PrintResult(newView(true, store.Record()))
	},
}
