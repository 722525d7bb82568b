package portal

import (
	"github.com/spf13/cobra"

	"github.com/asnowfix/fermion/fermion/ctl"
	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/hlog"
	"github.com/asnowfix/fermion/pkg/wm/config"
)

var Cmd = &cobra.Command{
	Use:   "portal",
	Short: "Force or release the configuration portal at next boot",
	Args:  cobra.NoArgs,
}

var persistent bool

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(forceCmd)
	Cmd.AddCommand(clearCmd)
	forceCmd.Flags().BoolVarP(&persistent, "persistent", "p", false, "keep the portal up until a configuration is saved")
}

func flag() (*config.PortalFlag, error) {
	fs, _, err := ctl.Flash()
	if err != nil {
		return nil, err
	}
	return config.NewPortalFlag(hlog.Logger, fs), nil
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the forced portal flag",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := flag()
		if err != nil {
			return err
		}
		forced, persistent := f.Forced()
		return options.PrintResult(map[string]bool{"forced": forced, "persistent": persistent})
	},
}

var forceCmd = &cobra.Command{
	Use:   "force",
	Short: "Start the configuration portal at next boot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := flag()
		if err != nil {
			return err
		}
		return f.Set(persistent)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the forced portal flag",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := flag()
		if err != nil {
			return err
		}
		return f.Clear()
	},
}
