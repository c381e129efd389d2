package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fako1024/btsense"
	"github.com/fako1024/btsense/config"
	"github.com/fako1024/btsense/sensor"
	"github.com/fako1024/btsense/transport/bluez"
	"github.com/fako1024/btsense/transport/gatt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "btsense",
		Short:        "Run a BLE environmental sensor node",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	rootCmd.PersistentFlags().String("transport", "", "bluetooth transport (gatt or bluez)")
	rootCmd.PersistentFlags().String("name", "", "local name to advertise")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Duration("sample-interval", 0, "period between two sensor measurements")
	rootCmd.PersistentFlags().Duration("collection-interval", 0, "period between two transmissions")
	rootCmd.PersistentFlags().Int("chunk-size", 0, "maximum number of readings per notification")

	rootCmd.AddCommand(newConfigCmd(&configPath), newCollectCmd())

	return rootCmd
}

func newConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

// loadConfig reads the configuration file (if any) and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport, _ = flags.GetString("transport")
	}
	if flags.Changed("name") {
		cfg.DeviceName, _ = flags.GetString("name")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("sample-interval") {
		cfg.SampleInterval, _ = flags.GetDuration("sample-interval")
	}
	if flags.Changed("collection-interval") {
		cfg.CollectionInterval, _ = flags.GetDuration("collection-interval")
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize, _ = flags.GetInt("chunk-size")
	}

	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := btsense.NewDefaultLogger(cfg.Debug)

	transport, err := newTransport(cfg, logger)
	if err != nil {
		return err
	}

	source := sensor.NewSimulated(
		sensor.WithBaseline(cfg.Simulation.Temperature, cfg.Simulation.Humidity),
		sensor.WithFaultRate(cfg.Simulation.FaultRate),
		sensor.WithSentinelRate(cfg.Simulation.SentinelRate),
	)

	stateChan := make(chan btsense.ConnectionStatus, 8)
	node, err := btsense.New(source, transport, append(cfg.NodeOptions(),
		btsense.WithLogger(logger),
		btsense.WithStateChangeChannel(stateChan),
		btsense.WithFaultHandler(func(faulted bool, consecutive int) {
			if faulted {
				logger.Errorf("sensor reported as faulted (%d consecutive failures)", consecutive)
				return
			}
			logger.Infof("sensor fault cleared")
		}),
	)...)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %w", err)
	}

	go func() {
		for st := range stateChan {
			if st.Error != nil {
				logger.Warnf("state change: %v (%s)", st.State, st.Error)
				continue
			}
			logger.Infof("state change: %v", st.State)
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	node.Run(ctx)

	logger.Infof("got signal, shutting down node")
	if err := node.Close(); err != nil {
		logger.Errorf("failed to close node: %s", err)
		return err
	}

	return nil
}

func newTransport(cfg *config.Config, logger btsense.Logger) (btsense.Transport, error) {
	switch cfg.Transport {
	case config.TransportBlueZ:
		return bluez.New(
			bluez.WithDeviceName(cfg.DeviceName),
			bluez.WithLogger(logger),
		)
	default:
		return gatt.New(
			gatt.WithDeviceName(cfg.DeviceName),
			gatt.WithLogger(logger),
		)
	}
}
