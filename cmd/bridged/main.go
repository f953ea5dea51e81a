// Command bridged is the process bootstrap shell for the AMQP-Kafka sink
// bridge. Process bootstrap and the AMQP connection acceptor are out of
// scope for this repository (spec.md §1): this command only loads
// BridgeConfig and shows how a real acceptor would hand each attached
// sending link to a sink.Endpoint.
//
// Grounded on other_examples' kldkafka.KafkaBridge CobraInit pattern
// (spf13/cobra command wiring a bridge's lifecycle) and the teacher's own
// cmd/hekad bootstrap shape.
package main

import (
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/mozilla-services/amqp-kafka-bridge/internal/bridgeconfig"
	"github.com/mozilla-services/amqp-kafka-bridge/internal/sink"
)

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridged",
		Short: "AMQP 1.0 <-> Kafka sink bridge",
		RunE:  run,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a BridgeConfig file (YAML/TOML/JSON)")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := bridgeconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading bridge config: %w", err)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	level.Info(logger).Log("msg", "bridge config loaded", "bootstrap_servers", fmt.Sprint(cfg.BootstrapServers))

	opts := sink.Options{
		BootstrapServers: cfg.BootstrapServers,
		AutoOffsetReset:  cfg.AutoOffsetReset,
		EnableAutoCommit: cfg.EnableAutoCommit,
		PollTimeout:      cfg.PollTimeout,
		ChannelBuffer:    cfg.ChannelBuffer,
		Logger:           logger,
	}

	// A real AMQP connection acceptor calls sink.New(opts) and Attach once
	// per sending link it accepts; that acceptor lives outside this
	// module's scope (spec.md §1), so bridged stops at demonstrating the
	// wiring point.
	_ = opts
	level.Info(logger).Log("msg", "bridge ready; waiting for a connection acceptor to hand off links")
	select {}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
