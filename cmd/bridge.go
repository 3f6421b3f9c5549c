// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/lorris/internal/bridge"
	"github.com/Thermoquad/lorris/internal/metrics"
	"github.com/Thermoquad/lorris/pkg/lorris"
)

var (
	bridgeNATS    string
	bridgeRedis   string
	bridgePrefix  string
	bridgeMetrics string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Forward frames from the connection to NATS and Redis",
	Long: `Forward every decoded frame to NATS as a JSON envelope.

Frames are published on <prefix>.<device>.<command>, with the command name
taken from --vocab (CMD_<id> without one). With a Redis address, the latest
frame of every command is kept in the hash <prefix>:shadow:<device>.

Frames published as base64 (bare or as {"frame": "..."}) on
<prefix>.downlink are written to the connection.

With --metrics, an HTTP endpoint serves /metrics, /healthz, /session and
/shadow/<device>.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVar(&bridgeNATS, "nats", "", "NATS server URL (default nats://127.0.0.1:4222)")
	bridgeCmd.Flags().StringVar(&bridgeRedis, "redis", "", "Redis address for the device shadow")
	bridgeCmd.Flags().StringVar(&bridgePrefix, "prefix", "", "Subject and key prefix (default lorris)")
	bridgeCmd.Flags().StringVar(&bridgeMetrics, "metrics", "", "HTTP address for metrics and shadow queries")
}

func runBridge(cmd *cobra.Command, args []string) error {
	bc := cfg.Bridge
	if bridgeNATS != "" {
		bc.NATSURL = bridgeNATS
	}
	if bridgeRedis != "" {
		bc.RedisAddr = bridgeRedis
	}
	if bridgePrefix != "" {
		bc.Prefix = bridgePrefix
	}
	if bridgeMetrics != "" {
		bc.Metrics = bridgeMetrics
	}

	vocab, err := lookupVocabulary(cfg.Vocabulary)
	if err != nil {
		return err
	}
	log := loggerFactory.NewLogger("bridge-cmd")

	nc, err := nats.Connect(bc.NATSURL, nats.Name("lorris-bridge"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()
	log.Infof("Connected to NATS %s", bc.NATSURL)

	var shadow *bridge.RedisShadow
	if bc.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     bc.RedisAddr,
			Password: bc.RedisPassword,
			DB:       bc.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Infof("Connected to Redis %s", bc.RedisAddr)
		shadow = bridge.NewRedisShadow(rdb, bc.Prefix, bc.ShadowTTL)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	reg := metrics.NewRegistry()
	collector := metrics.NewCollector(reg, vocab)

	bcfg := bridge.Config{
		Prefix:        bc.Prefix,
		Source:        connInfo,
		Vocabulary:    vocab,
		Publisher:     nc,
		Metrics:       collector,
		Device:        conn,
		LoggerFactory: loggerFactory,
	}
	if shadow != nil {
		bcfg.Shadow = shadow
	}
	b := bridge.New(bcfg)

	sub, err := nc.Subscribe(bridge.DownlinkSubject(bc.Prefix), func(msg *nats.Msg) {
		if err := b.HandleDownlink(msg.Data); err != nil {
			log.Warnf("downlink rejected: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to downlink: %w", err)
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(cmd.OutOrStdout(), "Lorris - Bridge\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Connection: %s\n", connInfo)
	fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\n", b.Session())
	fmt.Fprintf(cmd.OutOrStdout(), "Publishing: %s.<device>.<command>\n", bc.Prefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := b.Run(ctx, lorris.NewReader(conn))
		stop()
		return err
	})
	g.Go(func() error {
		// Unblock the reader on shutdown
		<-ctx.Done()
		conn.Close()
		return nil
	})
	if bc.Metrics != "" {
		router := metrics.NewRouter(reg)
		b.RegisterRoutes(router)
		g.Go(func() error {
			return metrics.Serve(ctx, bc.Metrics, router, loggerFactory.NewLogger("metrics"))
		})
	}

	err = g.Wait()
	fmt.Fprintf(cmd.OutOrStdout(), "Forwarded %d frames\n", b.Forwarded())
	if isClosed(err) {
		return nil
	}
	return err
}
