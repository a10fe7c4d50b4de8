package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/post-core/config"
)

func TestScryptParams_Validate(t *testing.T) {
	r := require.New(t)
	r.NoError(config.ScryptParams{N: 2, R: 1, P: 1}.Validate())
	r.NoError(config.ScryptParams{N: 8192, R: 8, P: 4}.Validate())
	r.Error(config.ScryptParams{N: 3, R: 1, P: 1}.Validate(), "N not a power of two")
	r.Error(config.ScryptParams{N: 1, R: 1, P: 1}.Validate(), "N below 2")
	r.Error(config.ScryptParams{N: 2, R: 0, P: 1}.Validate(), "R must be >= 1")
}

func TestValidate_NumUnitsRange(t *testing.T) {
	r := require.New(t)
	cfg := config.DefaultConfig()
	opts := config.DefaultInitOpts()
	opts.NumUnits = cfg.MinNumUnits
	r.NoError(config.Validate(cfg, opts))

	opts.NumUnits = cfg.MinNumUnits - 1
	if cfg.MinNumUnits > 0 {
		r.Error(config.Validate(cfg, opts))
	}

	opts.NumUnits = cfg.MaxNumUnits + 1
	r.Error(config.Validate(cfg, opts))
}

func TestValidate_OverflowRejected(t *testing.T) {
	r := require.New(t)
	cfg := config.DefaultConfig()
	cfg.LabelsPerUnit = ^uint64(0)
	opts := config.DefaultInitOpts()
	opts.NumUnits = cfg.MinNumUnits + 1
	if opts.NumUnits > cfg.MaxNumUnits {
		opts.NumUnits = cfg.MaxNumUnits
	}
	r.Error(config.Validate(cfg, opts))
}

func TestValidate_MaxFileSizeRequired(t *testing.T) {
	r := require.New(t)
	cfg := config.DefaultConfig()
	opts := config.DefaultInitOpts()
	opts.NumUnits = cfg.MinNumUnits
	opts.MaxFileSize = 0
	r.Error(config.Validate(cfg, opts))
}
