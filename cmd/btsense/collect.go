package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fako1024/btsense"
	"github.com/fako1024/btsense/collector"
	"github.com/spf13/cobra"
)

func newCollectCmd() *cobra.Command {
	var (
		name  string
		addr  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Connect to a sensor node as central and print received readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := btsense.NewDefaultLogger(debug)

			c, err := collector.New(
				collector.WithDeviceName(name),
				collector.WithDeviceID(addr),
				collector.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			stateChan := make(chan btsense.ConnectionStatus, 8)
			c.SetStateChangeChannel(stateChan)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, os.Interrupt)

			for {
				select {
				case st := <-stateChan:
					logger.Infof("state change: %v", st)
				case readings := <-c.Readings():
					for _, r := range readings {
						logger.Infof("got data: %s", r)
					}
				case <-sigChan:
					logger.Infof("got signal, terminating connection to device")
					return c.Close()
				}
			}
		},
	}

	cmd.Flags().StringVar(&name, "node-name", btsense.DefaultDeviceName, "name of remote sensor node")
	cmd.Flags().StringVar(&addr, "addr", "", "address of remote sensor node (MAC on Linux, UUID on OS X)")
	cmd.Flags().BoolVar(&debug, "verbose", false, "enable debug logging")

	return cmd
}
