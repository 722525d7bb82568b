package options

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/asnowfix/fermion/internal/global"
)

var Flags struct {
	ConfigFile string
	Verbose    bool
	Debug      bool
	Json       bool
}

// CommandLineContext returns a context cancelled on SIGINT or SIGTERM,
// carrying the logger and the program version.
func CommandLineContext(ctx context.Context, log logr.Logger, version string) context.Context {
	processCtx, processCancel := context.WithCancel(ctx)
	ctx, cancel := context.WithCancel(processCtx)
	ctx = context.WithValue(ctx, global.CancelKey, cancel)
	ctx = context.WithValue(ctx, global.ProcessContextKey, processCtx)
	ctx = context.WithValue(ctx, global.VersionKey, version)
	ctx = logr.NewContext(ctx, log)

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)
		select {
		case s := <-signals:
			log.Info("Received signal", "signal", s.String())
		case <-processCtx.Done():
		}
		cancel()
		processCancel()
	}()
	return ctx
}

func PrintResult(out any) error {
	if Flags.Json {
		s, err := json.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Println(string(s))
		return nil
	}
	s, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Print(string(s))
	return nil
}
