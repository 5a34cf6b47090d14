package main

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/service"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

type commandContext struct {
	configFlag   string
	logLevelFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	closers []func() error
}

// loadConfig resolves the configuration once per process. opts are the
// command's flag overrides and only the first call's opts apply.
func (c *commandContext) loadConfig(opts ...config.Option) (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.configFlag)
		if path == "" {
			path = os.Getenv(config.ConfigPathEnv)
		}
		if c.logLevelFlag != "" {
			level := c.logLevelFlag
			opts = append(opts, func(cfg *config.Config) { cfg.Log.Level = level })
		}

		cfg, err := config.Load(path, opts...)
		if err != nil {
			c.configErr = service.WrapError(err, service.ErrConfig, "load config")
			return
		}
		if err := c.setupLogging(cfg.Log); err != nil {
			c.configErr = service.WrapError(err, service.ErrConfig, "set up logging")
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) setupLogging(cfg config.LogConfig) error {
	level := log.ParseLevel(cfg.Level)
	if cfg.File == "" {
		log.InitLogger(level)
		return nil
	}
	fl, err := log.NewFileLogger(cfg.File, level)
	if err != nil {
		return err
	}
	log.UseLogger(fl.Logger)
	c.closers = append(c.closers, fl.Close)
	return nil
}

func (c *commandContext) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
