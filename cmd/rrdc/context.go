package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/rrdcached-go/internal/infrastructure/config"
	"github.com/nerrad567/rrdcached-go/internal/infrastructure/logging"
	"github.com/nerrad567/rrdcached-go/internal/rrdcached"
)

type commandContext struct {
	configFlag  string
	addressFlag string
	timeoutFlag time.Duration
	jsonOutput  bool
	verbose     bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.LoadOrDefault(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if c.addressFlag != "" {
			cfg.Daemon.Address = c.addressFlag
			if err := cfg.Validate(); err != nil {
				c.configErr = err
				return
			}
		}
		if c.verbose {
			cfg.Logging.Level = "debug"
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cmd *cobra.Command) *logging.Logger {
	cfg, _ := c.ensureConfig()
	if cfg == nil {
		return logging.Default()
	}
	if strings.EqualFold(cfg.Logging.Output, "stderr") {
		return logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())
	}
	return logging.New(cfg.Logging, version)
}

func (c *commandContext) dialConfig(cmd *cobra.Command) (rrdcached.DialConfig, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return rrdcached.DialConfig{}, err
	}
	ioTimeout := cfg.GetIOTimeout()
	if c.timeoutFlag > 0 {
		ioTimeout = c.timeoutFlag
	}
	return rrdcached.DialConfig{
		Address:        cfg.Daemon.Address,
		ConnectTimeout: cfg.GetConnectTimeout(),
		IOTimeout:      ioTimeout,
		Logger:         c.logger(cmd).With("component", "rrdcached"),
	}, nil
}

func (c *commandContext) withClient(cmd *cobra.Command, fn func(context.Context, *rrdcached.Client) error) error {
	dc, err := c.dialConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := rrdcached.Dial(ctx, dc)
	if err != nil {
		return fmt.Errorf("connect to rrdcached at %s: %w", dc.Address, err)
	}
	defer client.Close()
	return fn(ctx, client)
}
