package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/app"
	"github.com/JakeFAU/public-page-audit/internal/config"
	"github.com/JakeFAU/public-page-audit/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// cli carries the state shared by the root command and its subcommands for a
// single invocation.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	v          *viper.Viper
	configFile string
	appOpts    []app.Option

	app    *app.App
	logger *zap.Logger
}

// run executes one invocation and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, appOpts ...app.Option) int {
	c := &cli{
		stdout:  stdout,
		stderr:  stderr,
		v:       config.New(),
		appOpts: appOpts,
	}
	cmd := c.rootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	c.close()
	if err != nil {
		fmt.Fprintln(stderr, describeFailure(err))
		return 1
	}
	return 0
}

func (c *cli) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pageaudit",
		Short: "Find and re-check publicly readable wiki pages",
		Long: `pageaudit lists every page an anonymous visitor can read on a
Confluence-style wiki, writes them to a CSV report, and later re-checks a
sample of that report to catch pages that went private or disappeared.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "config file (YAML, TOML, or JSON)")
	flags.String("base-url", "", "site root, e.g. https://wiki.example.org")
	flags.String("report", "", "report location: a local path or gs://bucket/object")
	flags.String("log-level", "", "minimum log level: debug, info, warn, or error")
	flags.String("metrics-addr", "", "serve /metrics, /healthz, and /progress on this address")
	c.bind(flags, map[string]string{
		"site.base_url":       "base-url",
		"report.location":     "report",
		"logging.level":       "log-level",
		"metrics.listen_addr": "metrics-addr",
	})

	cmd.AddCommand(c.harvestCmd(), c.verifyCmd())
	return cmd
}

// bind maps config keys to flags. Unset flags leave the key to the file,
// environment, or default.
func (c *cli) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func (c *cli) setup(cmd *cobra.Command) error {
	if c.configFile != "" {
		c.v.SetConfigFile(c.configFile)
		if err := c.v.ReadInConfig(); err != nil {
			return stageError("config", fmt.Errorf("read config: %w", err))
		}
	}
	cfg, err := config.FromViper(c.v)
	if err != nil {
		return stageError("config", err)
	}
	stderrFile, _ := c.stderr.(*os.File)
	dev, err := logging.ResolveDevelopment(cfg.Logging.Development, stderrFile)
	if err != nil {
		return stageError("config", err)
	}
	logger, err := logging.New(logging.Options{Development: dev, Level: cfg.Logging.Level})
	if err != nil {
		return stageError("config", err)
	}
	c.logger = logger

	a, err := app.New(cmd.Context(), cfg, logger, c.appOpts...)
	if err != nil {
		return stageError("startup", err)
	}
	c.app = a
	return nil
}

// close releases the app and flushes the logger. It runs whether or not the
// command succeeded.
func (c *cli) close() {
	if c.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		c.app.Close(ctx)
		cancel()
		c.app = nil
	}
	if c.logger != nil {
		// Syncing stderr fails with EINVAL on some platforms; nothing to do about it.
		_ = c.logger.Sync()
	}
}

func (c *cli) requireApp() (*app.App, error) {
	if c.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return c.app, nil
}
