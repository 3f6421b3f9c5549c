// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/lorris/internal/device"
	"github.com/Thermoquad/lorris/internal/metrics"
	"github.com/Thermoquad/lorris/pkg/lorris"
	"github.com/Thermoquad/lorris/pkg/robutek"
	"github.com/Thermoquad/lorris/pkg/waveform"
)

var (
	servePeer    string
	serveListen  string
	serveMetrics string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Simulate a Lorris device on a UDP port",
	Long: `Run a simulated Lorris device that answers on UDP.

Peers:
  waveform  streams SIN, COS, TAN, INDEX and STEP every tick; SET_PARAMS
            changes the tick rate and step
  robutek   integrates motor speeds set by SET_PARAMS into encoder counts
            and stops if no command arrives for one second

Telemetry starts once a client has sent a datagram and goes to the most
recent client. With --metrics a Prometheus endpoint is served on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePeer, "peer", "waveform", "Simulated device (waveform, robutek)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "UDP listen address (default :9999)")
	serveCmd.Flags().StringVar(&serveMetrics, "metrics", "", "HTTP address for /metrics and /healthz")
}

// newPeer creates the simulated device and its vocabulary
func newPeer(name string, deviceID uint8, factory logging.LoggerFactory) (device.Peer, *lorris.Vocabulary, error) {
	switch name {
	case "waveform":
		return waveform.NewGenerator(deviceID, factory), waveform.Vocabulary, nil
	case "robutek":
		return robutek.NewRobot(deviceID, factory), robutek.Vocabulary, nil
	default:
		return nil, nil, fmt.Errorf("unknown peer %q (use waveform or robutek)", name)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListen != "" {
		cfg.Serve.Listen = serveListen
	}
	if serveMetrics != "" {
		cfg.Serve.Metrics = serveMetrics
	}

	peer, vocab, err := newPeer(servePeer, cfg.Device, loggerFactory)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	collector := metrics.NewCollector(reg, vocab)

	server, err := device.NewServer(device.ServerConfig{
		ListenAddr:    cfg.Serve.Listen,
		Peer:          peer,
		Metrics:       collector,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Lorris - %s device %d on %s\n", servePeer, cfg.Device, server.LocalAddr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	if cfg.Serve.Metrics != "" {
		router := metrics.NewRouter(reg)
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.Serve.Metrics, router, loggerFactory.NewLogger("metrics"))
		})
	}
	return g.Wait()
}
