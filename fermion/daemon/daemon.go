package daemon

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"github.com/kardianos/service"

	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/hlog"
	"github.com/asnowfix/fermion/internal/global"
)

type daemon struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

func NewDaemon(ctx context.Context) *daemon {
	ctx, cancel := context.WithCancel(ctx)
	return &daemon{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan error, 1),
	}
}

func (d *daemon) Start(s service.Service) error {
	// Start should not block.
	go func() {
		d.done <- d.Run()
	}()
	return nil
}

func (d *daemon) Stop(s service.Service) error {
	d.cancel()
	err := <-d.done
	if hlog.IsContextCancellation(err) {
		return nil
	}
	return err
}

func (d *daemon) Run() error {
	log, err := logr.FromContext(d.ctx)
	if err != nil {
		return err
	}
	cfg, err := options.Configuration()
	if err != nil {
		log.Error(err, "Invalid configuration")
		return err
	}
	log.Info("Starting Fermion device agent", "version", global.Version(d.ctx), "storage", cfg.Storage.Dir)

	dev, err := Build(d.ctx, log, cfg)
	if err != nil {
		log.Error(err, "Failed to initialize device")
		return err
	}
	err = dev.Run(d.ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("Device agent stopped")
		return nil
	}
	return err
}
