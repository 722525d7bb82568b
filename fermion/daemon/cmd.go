package daemon

import (
	"github.com/go-logr/logr"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/hlog"
)

var Cmd = &cobra.Command{
	Use:   "daemon",
	Short: "Fermion device agent",
	Long:  "Fermion device agent: onboarding state machine, configuration portal and cloud session",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		hlog.InitForDaemon(options.Flags.Verbose, options.Flags.Debug)
		cmd.SetContext(logr.NewContext(cmd.Context(), hlog.Logger))
		return nil
	},
}

func init() {
	Cmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the device agent in the foreground (or as a service)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if service.Interactive() {
			return NewDaemon(cmd.Context()).Run()
		}
		s, _, err := load(cmd.Context())
		if err != nil {
			return err
		}
		return s.Run()
	},
}
