// Package ctl holds what the operator commands share.
package ctl

import (
	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/asnowfix/fermion/fermion/options"
	"github.com/asnowfix/fermion/pkg/wm/config"
)

// Flash opens the device filesystem.
func Flash() (afero.Fs, *options.Config, error) {
	cfg, err := options.Configuration()
	if err != nil {
		return nil, nil, err
	}
	fs, err := cfg.Flash()
	if err != nil {
		return nil, nil, err
	}
	return fs, cfg, nil
}

func ConfigStore(log logr.Logger) (*config.Store, error) {
	fs, cfg, err := Flash()
	if err != nil {
		return nil, err
	}
	return config.NewStore(log, fs, config.WithBoardType(cfg.Device.BoardType)), nil
}
