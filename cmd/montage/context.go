package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"montage/internal/api"
	"montage/internal/config"
	"montage/internal/queue"
	"montage/internal/queueaccess"
)

type commandContext struct {
	configFlag *string
	localFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, localFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		localFlag:  localFlag,
	}
}

// withConfig returns a context whose configuration is already resolved.
func withConfig(cfg *config.Config) *commandContext {
	local := false
	empty := ""
	ctx := newCommandContext(&empty, &local)
	ctx.configOnce.Do(func() { ctx.config = cfg })
	return ctx
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withAccess hands fn the daemon-backed access when the daemon answers, or
// direct store access otherwise.
func (c *commandContext) withAccess(cmdCtx context.Context, fn func(queueaccess.Access) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	var dial func() (*api.Client, error)
	if c.localFlag == nil || !*c.localFlag {
		dial = func() (*api.Client, error) { return queueaccess.DialDaemon(cmdCtx, cfg) }
	}
	session, err := queueaccess.OpenWithFallback(cfg, dial, func() (*queue.Store, error) {
		return queue.Open(cfg)
	})
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
