// Command client opens one or more reconnecting links to an echo server and
// sends every line read from stdin over each of them. Type "quit" to exit.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/connector"
)

var (
	cfgFile     string
	port        int
	ip          string
	links       int
	statusEvery time.Duration
)

// timerStatus is the first application timer id.
const timerStatus = connector.ConnectorTimerEnd

var rootCmd = &cobra.Command{
	Use:           "client",
	Short:         "Reconnecting length-framed TCP client",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := connector.DefaultConfig()
		if cfgFile != "" {
			var err error
			if cfg, err = connector.LoadConfig(cfgFile); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
		}
		if cmd.Flags().Changed("port") {
			cfg.ServerPort = port
		}
		if cmd.Flags().Changed("ip") {
			cfg.ServerIP = ip
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	rootCmd.Flags().IntVarP(&port, "port", "p", connector.DefaultServerPort, "server port")
	rootCmd.Flags().StringVarP(&ip, "ip", "i", connector.DefaultServerIP, "server ip")
	rootCmd.Flags().IntVarP(&links, "links", "n", 1, "number of links")
	rootCmd.Flags().DurationVar(&statusEvery, "status-every", 0, "log link status at this interval, 0 disables")
}

func newLink(cfg connector.Config, n int) (*connector.Connector, error) {
	logger := slog.Default().With("link", n)

	c, err := connector.NewConnector(
		connector.ConfigOption(cfg),
		connector.LoggerOption(logger),
		connector.OnConnectOption(func() {
			logger.Info("link up")
		}),
		connector.OnMessageOption(func(msg []byte) error {
			fmt.Printf("[%d] %s\n", n, msg)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	if statusEvery > 0 {
		c.Timers().ConfigureAndStart(timerStatus, statusEvery, func(connector.TimerID) bool {
			logger.Info("link status", "connected", c.IsConnected(), "reconnecting", c.IsReconnecting())
			return true
		})
	}
	return c, nil
}

func run(ctx context.Context, cfg connector.Config) error {
	conns := make([]*connector.Connector, 0, links)
	for i := 0; i < links; i++ {
		c, err := newLink(cfg, i)
		if err != nil {
			return err
		}
		conns = append(conns, c)
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, c := range conns {
		c := c
		group.Go(func() error {
			if err := c.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			c.GracefulClose(false, true)
			c.Stop()
			return nil
		})
	}

	group.Go(func() error {
		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || strings.TrimSpace(line) == "quit" {
					return context.Canceled
				}
				for _, c := range conns {
					if err := c.Send([]byte(line)); err != nil {
						slog.Warn("send failed", "conn_id", c.ID(), "error", err)
					}
				}
			}
		}
	})

	if err := group.Wait(); err != nil && !connector.IsCanceled(err) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
