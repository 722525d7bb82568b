package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/asnowfix/fermion/fermion/broker"
	"github.com/asnowfix/fermion/fermion/ctl/config"
	"github.com/asnowfix/fermion/fermion/ctl/portal"
	"github.com/asnowfix/fermion/fermion/ctl/token"
	"github.com/asnowfix/fermion/fermion/ctl/wifi"
	"github.com/asnowfix/fermion/fermion/daemon"
	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/hlog"
	"github.com/asnowfix/fermion/internal/global"
)

var Cmd = &cobra.Command{
	Use:          "fermion",
	Short:        "Fermion device agent",
	Long:         "Fermion device agent: WiFi onboarding, cloud device authorization and messaging",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		hlog.Init(options.Flags.Verbose, options.Flags.Debug)
		ctx := options.CommandLineContext(cmd.Context(), hlog.Logger, getVersion())
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		global.Cancel(cmd.Context())
		return nil
	},
}

func init() {
	Cmd.PersistentFlags().StringVarP(&options.Flags.ConfigFile, "config", "c", "", "configuration `file` (default: fermion.yaml in ., /etc/fermion, ~/.config/fermion)")
	Cmd.PersistentFlags().BoolVarP(&options.Flags.Verbose, "verbose", "v", false, "verbose output")
	Cmd.PersistentFlags().BoolVarP(&options.Flags.Debug, "debug", "d", false, "debug output")
	Cmd.PersistentFlags().BoolVarP(&options.Flags.Json, "json", "j", false, "print results as JSON instead of YAML")
	Cmd.AddCommand(daemon.Cmd)
	Cmd.AddCommand(config.Cmd)
	Cmd.AddCommand(portal.Cmd)
	Cmd.AddCommand(token.Cmd)
	Cmd.AddCommand(wifi.Cmd)
	Cmd.AddCommand(broker.Cmd)
}

func main() {
	cobra.EnableTraverseRunHooks = true
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
