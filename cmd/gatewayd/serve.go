package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/weavegate/gateway/pkg/admission"
	"github.com/weavegate/gateway/pkg/chunk"
	"github.com/weavegate/gateway/pkg/config"
	"github.com/weavegate/gateway/pkg/constants"
	"github.com/weavegate/gateway/pkg/datasource"
	"github.com/weavegate/gateway/pkg/datasource/cachetier"
	"github.com/weavegate/gateway/pkg/datasource/chunkstier"
	"github.com/weavegate/gateway/pkg/datasource/gatewaytier"
	"github.com/weavegate/gateway/pkg/datasource/s3tier"
	"github.com/weavegate/gateway/pkg/httpapi"
	"github.com/weavegate/gateway/pkg/logging"
	"github.com/weavegate/gateway/pkg/peer"
	"github.com/weavegate/gateway/pkg/ratelimit"
)

func newServeCommand() *cobra.Command {
	var yamlPath, envPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), yamlPath, envPath)
		},
	}
	cmd.Flags().StringVar(&yamlPath, "config", "gatewayd.yaml", "path to a YAML config file (optional)")
	cmd.Flags().StringVar(&envPath, "env", ".env", "path to a .env file (optional)")
	return cmd
}

func runServe(ctx context.Context, yamlPath, envPath string) error {
	cfg, err := config.Load(yamlPath, envPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.Logging)
	entry := logrus.NewEntry(log)

	var peerManager *peer.Manager
	if cfg.Peer.TrustedNodeURL != "" {
		peerManager = startPeerManager(ctx, cfg.Peer, entry)
	}

	content, err := buildDataSource(ctx, cfg.DataSource, peerManager, cfg.Peer.TrustedNodeURL, entry)
	if err != nil {
		return fmt.Errorf("build data source: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(ratelimit.Config{
			Capacity:           cfg.RateLimit.Capacity,
			RefillRate:         cfg.RateLimit.RefillRate,
			CapacityMultiplier: cfg.RateLimit.CapacityMultiplier,
			MaxBuckets:         cfg.RateLimit.MaxBuckets,
			Allowlist:          cfg.RateLimit.Allowlist,
		})
		if err != nil {
			return fmt.Errorf("build rate limiter: %w", err)
		}
	}

	var gate *admission.Gate
	if limiter != nil {
		nameAllowlist := make(map[string]struct{}, len(cfg.Admission.NameAllowlist))
		for _, name := range cfg.Admission.NameAllowlist {
			nameAllowlist[name] = struct{}{}
		}
		gate = admission.New(admission.Config{
			Limiter:       limiter,
			NameAllowlist: nameAllowlist,
			Log:           entry,
		})
	}

	server := httpapi.New(httpapi.Config{
		Content:  content,
		Gate:     gate,
		Limiter:  limiter,
		AdminKey: cfg.Server.AdminKey,
		MaxHops:  cfg.Server.MaxHops,
		Log:      entry,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		entry.WithField("addr", cfg.Server.ListenAddr).Info("gatewayd listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
		entry.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// buildDataSource wires the configured tiers into a Composite in the fixed
// cache -> s3 -> gateway -> chunks priority order. The chunks tier needs a
// running peer manager to select getChunk candidates from; if none is
// configured (no peer.trustedNodeURL), the tier is skipped.
func buildDataSource(ctx context.Context, cfg config.DataSourceConfig, manager *peer.Manager, trustedNodeURL string, log *logrus.Entry) (*datasource.Composite, error) {
	var tiers []datasource.Tier

	if cfg.Cache.Enabled {
		tiers = append(tiers, cachetier.New(cfg.Cache.MaxBytes, cfg.Cache.MaxObjectLen))
	}

	if cfg.S3.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		tiers = append(tiers, s3tier.New(s3.NewFromConfig(awsCfg), cfg.S3.Bucket, cfg.S3.KeyPrefix))
	}

	if cfg.Gateway.Enabled {
		tiers = append(tiers, gatewaytier.New(gatewaytier.Config{
			Groups:  cfg.Gateway.Groups,
			MaxHops: constants.DefaultMaxHops,
		}))
	}

	if cfg.Chunks.Enabled {
		if manager == nil {
			log.Warn("datasource.chunks enabled but peer.trustedNodeURL is not configured; skipping chunks tier")
		} else {
			source := chunk.NewValidatingSource(peer.NewChunkSource(manager, nil))
			resolver := peer.NewTxResolver(trustedNodeURL, nil)
			tiers = append(tiers, chunkstier.New(resolver, source))
		}
	}

	return datasource.NewComposite(tiers, log), nil
}

// startPeerManager starts the periodic trusted-node peer list refresh in
// the background.
func startPeerManager(ctx context.Context, cfg config.PeerConfig, log *logrus.Entry) *peer.Manager {
	manager := peer.New(peer.Config{
		TrustedNodeURL: cfg.TrustedNodeURL,
		IgnoreHosts:    cfg.IgnoreHosts,
		Log:            log,
	})

	go func() {
		ticker := time.NewTicker(constants.PeerRefreshInterval)
		defer ticker.Stop()

		if err := manager.Refresh(ctx); err != nil {
			log.WithError(err).Warn("initial peer refresh failed")
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := manager.Refresh(ctx); err != nil {
					log.WithError(err).Warn("peer refresh failed")
				}
			}
		}
	}()

	return manager
}
