package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"capcache/pkg/cache"
	"capcache/pkg/caps"
	"capcache/pkg/disco"
	"capcache/pkg/metrics"
	"capcache/pkg/resolver"
	"capcache/pkg/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local capability set and resolve peer fingerprints",
		Long: `Start the capability service: answers disco info queries for the local
capability set, keeps the local fingerprint up to date and optionally
exposes Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			registry := disco.NewRegistry(logger.With(zap.String("component", "registry")))
			registry.SetIdentities([]caps.Identity{{
				Category: cfg.Identity.Category,
				Type:     cfg.Identity.Type,
				Name:     cfg.Identity.Name,
			}})
			for _, feature := range cfg.Features {
				registry.RegisterFeature(feature)
			}

			var m *metrics.Metrics
			if cfg.MetricsAddress != "" {
				m = metrics.New(nil)
			}

			tracker := resolver.NewVersionTracker(registry, cfg.NodeURI, logger)
			tracker.Subscribe(func() {
				logger.Info("fingerprint changed, presence should be re-published",
					zap.String("ver", tracker.Ver()))
			})
			tracker.Update()

			tiered := store.New(cfg.SystemDBPath, cfg.UserDBPath, store.XMLCodec{}, m, logger)
			defer tiered.Close()

			client := disco.NewClient(logger)
			defer client.Close()

			res := resolver.New(cache.New(tiered, m, logger), client, m, logger)

			lis, err := net.Listen("tcp", cfg.ListenAddress)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddress, err)
			}

			grpcServer := grpc.NewServer()
			disco.RegisterDiscoServer(grpcServer, disco.NewServer(registry, logger))
			resolver.RegisterResolverServer(grpcServer, resolver.NewService(res, logger))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				logger.Info("capability service listening",
					zap.String("address", cfg.ListenAddress),
					zap.String("node", cfg.NodeURI),
					zap.String("ver", tracker.Ver()))
				if err := grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
					return err
				}
				return nil
			})

			var metricsServer *http.Server
			if cfg.MetricsAddress != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
				g.Go(func() error {
					logger.Info("metrics server listening", zap.String("address", cfg.MetricsAddress))
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						return err
					}
					return nil
				})
			}

			g.Go(func() error {
				<-ctx.Done()
				logger.Info("shutting down")
				grpcServer.GracefulStop()
				if metricsServer != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					metricsServer.Shutdown(shutdownCtx)
				}
				return nil
			})

			return g.Wait()
		},
	}
	return cmd
}
