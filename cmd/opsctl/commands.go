package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"opsdesk/internal/app"
	"opsdesk/internal/config"
	appctx "opsdesk/internal/core/context"
	"opsdesk/internal/core/id"
	"opsdesk/pkg/logger"
)

// opener builds the application for one command run. The returned func
// releases it.
type opener func(ctx context.Context, cfg *config.Configuration, log *logger.Logger) (*app.App, func(), error)

type cli struct {
	out io.Writer

	configFile string
	company    string
	actor      string

	open opener

	cfg     *config.Configuration
	log     *logger.Logger
	app     *app.App
	release func()
}

func newCLI(out io.Writer) *cli {
	return &cli{
		out: out,
		open: func(ctx context.Context, cfg *config.Configuration, log *logger.Logger) (*app.App, func(), error) {
			a, err := app.New(ctx, cfg, log, app.Options{})
			if err != nil {
				return nil, nil, err
			}
			return a, a.Close, nil
		},
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "opsctl",
		Short:         "Operate per-legal-entity document numbering",
		SilenceUsage: true,
	}
	root.SetOut(c.out)
	root.SetErr(c.out)

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "path to the configuration file")
	root.PersistentFlags().StringVar(&c.company, "company", "", "company ID the command acts for")
	root.PersistentFlags().StringVar(&c.actor, "actor", "opsctl", "operator label recorded in the audit trail")

	root.AddCommand(
		newMigrateCmd(c),
		newEntitiesCmd(c),
		newCountersCmd(c),
		newBackfillCmd(c),
	)
	return root
}

// loadConfig reads configuration and builds the logger.
func (c *cli) loadConfig() error {
	if c.cfg != nil {
		return nil
	}
	cfg, err := config.Load(c.configFile)
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	c.cfg, c.log = cfg, log
	return nil
}

// application opens the backend and services once per run.
func (c *cli) application(ctx context.Context) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	if err := c.loadConfig(); err != nil {
		return nil, err
	}
	a, release, err := c.open(ctx, c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	c.app, c.release = a, release
	return a, nil
}

// close releases whatever application() opened.
func (c *cli) close() {
	if c.release != nil {
		c.release()
	}
	c.app, c.release = nil, nil
}

// companyContext attaches --company and --actor to ctx for audit and
// ownership checks.
func (c *cli) companyContext(ctx context.Context) (context.Context, id.ID, error) {
	if c.company == "" {
		return nil, id.Nil(), errors.New("--company is required")
	}
	companyID, err := id.Parse(c.company)
	if err != nil {
		return nil, id.Nil(), fmt.Errorf("invalid --company: %w", err)
	}
	ctx = appctx.WithCompany(ctx, &appctx.CompanyContext{CompanyID: companyID, Actor: c.actor})
	return ctx, companyID, nil
}

// target is a company-scoped command acting on one legal entity.
type target struct {
	ctx       context.Context
	app       *app.App
	companyID id.ID
	entityID  id.ID
}

func (c *cli) resolveTarget(cmd *cobra.Command, rawEntityID string) (target, error) {
	entityID, err := parseID(rawEntityID, "entity ID")
	if err != nil {
		return target{}, err
	}
	ctx, companyID, err := c.companyContext(cmd.Context())
	if err != nil {
		return target{}, err
	}
	a, err := c.application(ctx)
	if err != nil {
		return target{}, err
	}
	return target{ctx: ctx, app: a, companyID: companyID, entityID: entityID}, nil
}

func parseID(raw, name string) (id.ID, error) {
	v, err := id.Parse(raw)
	if err != nil {
		return id.Nil(), fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}
