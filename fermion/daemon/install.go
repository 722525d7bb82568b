package daemon

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/asnowfix/fermion/fermion/options"
)

func init() {
	Cmd.AddCommand(installCmd)
	Cmd.AddCommand(uninstallCmd)
}

func load(ctx context.Context) (service.Service, service.Logger, error) {
	log, err := logr.FromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	args := []string{"daemon", "run"}
	if options.Flags.ConfigFile != "" {
		args = append([]string{"--config", options.Flags.ConfigFile}, args...)
	}
	config := service.Config{
		Name:        "fermion",
		DisplayName: "Fermion",
		Description: "Fermion device agent: WiFi onboarding and cloud session",
		Arguments:   args,
	}

	s, err := service.New(NewDaemon(ctx), &config)
	if err != nil {
		log.Error(err, "Failed to create (background) service")
		return nil, nil, err
	}
	logger, err := s.Logger(nil)
	if err != nil {
		log.Error(err, "Failed to create service logger")
		return nil, nil, err
	}
	return s, logger, nil
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install Fermion as a " + service.Platform() + " service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, l, err := load(cmd.Context())
		if err != nil {
			return err
		}
		_ = l.Info("Installing service")
		return s.Install()
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall Fermion as a " + service.Platform() + " service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, l, err := load(cmd.Context())
		if err != nil {
			return err
		}
		_ = l.Info("Uninstalling service")
		return s.Uninstall()
	},
}
