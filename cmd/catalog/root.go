package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/catalog/cache"
	_ "github.com/git-pkgs/catalog/codec/all"
	"github.com/git-pkgs/catalog/config"
	"github.com/git-pkgs/catalog/fetch"
	"github.com/git-pkgs/catalog/internal/core"
	"github.com/git-pkgs/catalog/internal/logger"
	"github.com/git-pkgs/catalog/internal/metrics"
	"github.com/git-pkgs/catalog/internal/plugindir"
	"github.com/git-pkgs/catalog/loader"
)

const userAgent = "catalog-cli/1.0"

// app carries what every command needs once the configuration is loaded.
type app struct {
	configPath string
	logLevel   string
	pretty     bool

	cfg      *config.Config
	log      *logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	fetcher  fetch.FetcherInterface
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "catalog",
		Short:         "Browse plugin catalogs and install bundles",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if err := cache.Cleanup(); err != nil && a.log != nil {
				a.log.Warn().Err(err).Msg("removing leftover cache files")
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.pretty, "log-pretty", false, "human readable log output")

	root.AddCommand(
		newListCmd(a),
		newShowCmd(a),
		newCheckCmd(a),
		newWatchCmd(a),
		newInstallCmd(a),
		newFmtCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	a.log = logger.New(logger.Config{
		Level:  level,
		Pretty: cfg.LogPretty || a.pretty,
		Output: cmd.ErrOrStderr(),
	})

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	a.fetcher = fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(
		fetch.WithUserAgent(userAgent),
		fetch.WithLogger(a.log.Component("fetch").Zerolog()),
	))
	return nil
}

func (a *app) host() core.Host {
	return core.Host{Build: a.cfg.HostBuild}
}

func (a *app) pluginDir(ctx context.Context) (*plugindir.Dir, error) {
	return plugindir.Open(ctx, a.cfg.PluginDir, plugindir.WithLogger(a.log.Component("plugindir").Zerolog()))
}

func (a *app) loader(installed core.Installed) *loader.Loader {
	opts := []loader.Option{
		loader.WithFetcher(a.fetcher),
		loader.WithHost(a.host()),
		loader.WithLocale(a.cfg.Locale),
		loader.WithLogger(a.log.Component("loader").Zerolog()),
		loader.WithMetrics(a.metrics),
	}
	if installed != nil {
		opts = append(opts, loader.WithInstalled(installed))
	}
	if primary := a.cfg.Primary(); primary != "" {
		c := cache.New(a.cfg.CachePath(), cache.WithLogger(a.log.Component("cache").Zerolog()))
		opts = append(opts, loader.WithCache(primary, c))
	}
	return loader.New(opts...)
}

// load loads one catalog, falling back to the primary catalog when url is
// empty.
func (a *app) load(ctx context.Context, url string, installed core.Installed, noCache bool) (*loader.Result, error) {
	if url == "" {
		url = a.cfg.Primary()
	}
	if url == "" {
		return nil, fmt.Errorf("no catalog URL given and none configured")
	}
	start := time.Now()
	res, err := a.loader(installed).Load(ctx, url, loader.LoadOptions{NoCache: noCache})
	if err != nil {
		a.log.LogCatalogLoad(url, "", 0, time.Since(start), err)
		return nil, err
	}
	a.log.LogCatalogLoad(res.URL, string(res.Source), res.Catalog.Size(), time.Since(start), nil)
	return res, nil
}

func urlArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func printWarnings(w io.Writer, warnings []core.Warning) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
