package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	webhook "github.com/bft-labs/beacons/internal/adapters/http"
	"github.com/bft-labs/beacons/internal/adapters/mqtt"
	"github.com/bft-labs/beacons/internal/api"
	"github.com/bft-labs/beacons/internal/cliconfig"
	"github.com/bft-labs/beacons/pkg/beacons"
	"github.com/bft-labs/beacons/pkg/log"
	"github.com/bft-labs/beacons/plugins/radioswitch"
)

const longHelp = `beacond keeps Bluetooth LE beacons on air.

Beacons are created over the HTTP API or imported from a YAML file. Saved
beacons that were enabled when the daemon stopped resume on the next start.

Configuration is read from $HOME/.beacond/config.toml, then BEACOND_*
environment variables (optionally from a .env file), then flags.`

var exampleUsage = strings.TrimSpace(`
  beacond --data-dir /var/lib/beacond --http-addr :8470
  beacond --store file --radio-switch-file /run/beacond/radio
  beacond import seed.yaml
  beacond list
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// options shared by every command.
type rootOptions struct {
	cfg     cliconfig.Config
	cfgPath string
	envFile string
}

func main() {
	opts := &rootOptions{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "beacond",
		Short:         "Advertise and manage Bluetooth LE beacons",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runDaemon(opts.cfg, logger)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgPath, "config", "", "path to config file (default: $HOME/.beacond/config.toml)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with BEACOND_* variables")
	pf.StringVar(&opts.cfg.DataDir, "data-dir", "", "data directory (default: $HOME/.beacond)")
	pf.StringVar(&opts.cfg.StoreDriver, "store", opts.cfg.StoreDriver, "store backend: sqlite or file")
	pf.StringVar(&opts.cfg.StorePath, "store-path", "", "database file (sqlite) or directory (file)")
	pf.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "log level: debug, info, warn, error")
	pf.StringVar(&opts.cfg.LogFormat, "log-format", opts.cfg.LogFormat, "log format: console or json")

	f := root.Flags()
	f.IntVar(&opts.cfg.RadioSlots, "radio-slots", 0, "concurrent advertisers the radio offers (default 4)")
	f.BoolVar(&opts.cfg.RadioDisabled, "radio-disabled", false, "start with the radio powered off")
	f.StringVar(&opts.cfg.RadioSwitchFile, "radio-switch-file", "", "file whose content (on/off) powers the radio")
	f.StringVar(&opts.cfg.HTTPAddr, "http-addr", opts.cfg.HTTPAddr, "control API listen address; empty disables the API")
	f.StringVar(&opts.cfg.AuthSecret, "auth-secret", "", "HS256 secret for API bearer tokens")
	f.StringVar(&opts.cfg.MQTTBroker, "mqtt-broker", "", "MQTT broker URL for beacon events")
	f.StringVar(&opts.cfg.MQTTTopic, "mqtt-topic", opts.cfg.MQTTTopic, "MQTT topic prefix")
	f.StringVar(&opts.cfg.WebhookURL, "webhook-url", "", "URL that receives beacon events as JSON")
	f.StringVar(&opts.cfg.WebhookKey, "webhook-key", "", "bearer key sent to the webhook")
	f.DurationVar(&opts.cfg.HTTPTimeout, "timeout", opts.cfg.HTTPTimeout, "webhook HTTP timeout")

	root.AddCommand(newListCommand(opts), newImportCommand(opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "beacond:", err)
		os.Exit(1)
	}
}

// load resolves the configuration (file, then env, then flags) and builds
// the logger.
func (o *rootOptions) load(cmd *cobra.Command) (log.Logger, error) {
	cfgFile := o.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	// Build set of changed flags
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&o.cfg, fc, changed); err != nil {
			return nil, err
		}
	}

	if err := cliconfig.LoadDotEnv(o.envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", o.envFile, err)
	}
	if err := cliconfig.ApplyEnvConfig(&o.cfg, changed); err != nil {
		return nil, err
	}

	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := log.New(os.Stderr, o.cfg.LogLevel, o.cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration", log.Any("config", o.cfg.Masked()))
	return logger, nil
}

func runDaemon(cfg cliconfig.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []beacons.Option{beacons.WithLogger(logger)}

	if cfg.MQTTBroker != "" {
		n, disconnect, err := mqtt.Dial(cfg.MQTTBroker, "", cfg.MQTTTopic, logger)
		if err != nil {
			return err
		}
		defer disconnect()
		opts = append(opts, beacons.WithNotifier(n))
	}

	if cfg.WebhookURL != "" {
		hostname, _ := os.Hostname()
		// The manager runs the delivery worker.
		opts = append(opts, beacons.WithNotifier(webhook.NewWebhook(webhook.WebhookConfig{
			URL:      cfg.WebhookURL,
			AuthKey:  cfg.WebhookKey,
			Client:   &http.Client{Timeout: cfg.HTTPTimeout},
			Hostname: hostname,
			Logger:   logger,
		})))
	}

	if cfg.RadioSwitchFile != "" {
		opts = append(opts, radioswitch.WithRadioSwitch(radioswitch.Config{Path: cfg.RadioSwitchFile}))
	}

	m, err := beacons.New(cfg.ManagerConfig(), opts...)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	// The manager outlives ctx so Stop can still halt sessions on the worker.
	if err := m.Start(context.Background()); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}
	logger.Info("beacond started",
		log.String("data_dir", cfg.DataDir),
		log.String("store", cfg.StoreDriver),
		log.String("version", getVersion()))

	errCh := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		srv, err := api.NewServer(m, api.Config{
			Addr:       cfg.HTTPAddr,
			AuthSecret: cfg.AuthSecret,
			Logger:     logger,
		})
		if err != nil {
			_ = m.Stop()
			return err
		}
		go func() { errCh <- srv.ListenAndServe(ctx) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, stopping...")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("api server failed", log.Err(runErr))
		}
	}
	stop()

	if err := m.Stop(); err != nil && !errors.Is(err, beacons.ErrNotRunning) {
		return fmt.Errorf("stop manager: %w", err)
	}
	return runErr
}
