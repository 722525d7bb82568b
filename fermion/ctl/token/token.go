package token

import (
	"github.com/spf13/cobra"

	"github.com/asnowfix/fermion/fermion/ctl"
	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/hlog"
	"github.com/asnowfix/fermion/pkg/wm/token"
)

var Cmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect or forget the stored cloud refresh token",
	Args:  cobra.NoArgs,
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(clearCmd)
}

func store() (*token.Store, error) {
	fs, _, err := ctl.Flash()
	if err != nil {
		return nil, err
	}
	return token.NewStore(hlog.Logger, fs), nil
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Tell whether a refresh token is stored (never prints it)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store()
		if err != nil {
			return err
		}
		_, ok := s.LoadRefreshToken()
		return options.PrintResult(map[string]bool{"refresh_token": ok})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the refresh token; the device authorization starts over",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store()
		if err != nil {
			return err
		}
		return s.DeleteRefreshToken()
	},
}
