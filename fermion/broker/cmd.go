package broker

import (
	"github.com/spf13/cobra"

	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/hlog"
	"github.com/asnowfix/fermion/internal/broker"
)

var Cmd = &cobra.Command{
	Use:   "broker",
	Short: "Run a local MQTT broker for development",
	Long:  "Run a local MQTT broker accepting every client, advertised over mDNS as " + broker.Service + ", for devices configured with cloud.broker: zeroconf",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := options.Viper()
		if err != nil {
			return err
		}
		if err := v.BindPFlag("broker.listen", cmd.Flags().Lookup("listen")); err != nil {
			return err
		}
		if err := v.BindPFlag("broker.mdns", cmd.Flags().Lookup("mdns")); err != nil {
			return err
		}
		cfg, err := options.Load(v)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		log := hlog.GetLogger("fermion")
		b, err := broker.Start(ctx, log, broker.Config{
			Listen: cfg.Broker.Listen,
			MDNS:   cfg.Broker.MDNS,
		}, v)
		if err != nil {
			return err
		}
		<-ctx.Done()
		return b.Close()
	},
}

func init() {
	Cmd.Flags().StringP("listen", "l", broker.DefaultListen, "MQTT listen address")
	Cmd.Flags().Bool("mdns", true, "advertise the broker over mDNS")
}
