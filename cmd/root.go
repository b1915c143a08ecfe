// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/avbstream/internal/config"
	"firestige.xyz/avbstream/internal/log"
	"firestige.xyz/avbstream/internal/metrics"
)

var (
	// Global flags
	configFile string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "avbstream",
	Short: "avbstream - IEEE 1722 AVB talker and listener",
	Long: `avbstream streams raw PCM audio (IEC 61883-6) and MPEG transport streams
(IEC 61883-4) over IEEE 1722 AVTP on a raw Ethernet interface.

The talker reads media from a file or stdin and sends it with presentation
times taken from gPTP. The listener receives a stream, rebuilds presentation
times and writes the media to a file or stdout.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when empty)")

	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(validateCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := log.Init(&c.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cfg = c
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startMetrics starts the scrape and status server when enabled. The
// returned stop function is always safe to call.
func startMetrics(ctx context.Context, status metrics.StatusFunc) (func(), error) {
	if !cfg.Metrics.Enabled {
		return func() {}, nil
	}
	srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, status)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := srv.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Warn("stop metrics server")
		}
	}, nil
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
