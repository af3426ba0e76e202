package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"capcache/pkg/cache"
	"capcache/pkg/disco"
	"capcache/pkg/resolver"
	"capcache/pkg/store"
)

func lookupCmd() *cobra.Command {
	var (
		node    string
		algo    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "lookup <peer-address> <ver>",
		Short: "Resolve a peer's fingerprint to its full capability set",
		Long: `Resolve the given fingerprint against the configured datasets, falling back
to a verified query against the peer, and print the capability set.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			peerAddr, ver := args[0], args[1]
			if node == "" {
				node = cfg.NodeURI
			}
			if algo == "" {
				algo = cfg.HashAlgorithm
			}

			tiered := store.New(cfg.SystemDBPath, cfg.UserDBPath, store.XMLCodec{}, nil, logger)
			defer tiered.Close()

			client := disco.NewClient(logger)
			defer client.Close()

			res := resolver.New(cache.New(tiered, nil, logger), client, nil, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			set, err := res.LookupCapabilities(ctx, peerAddr, node, ver, algo)
			if err != nil {
				return err
			}

			logger.Debug("resolved capability set",
				zap.String("peer", peerAddr),
				zap.Int("features", len(set.Features)))
			printCapabilitySet(set, algo, ver)
			return nil
		},
	}

	cmd.Flags().StringVar(&node, "node", "", "base node URI advertised by the peer (defaults to the configured node URI)")
	cmd.Flags().StringVar(&algo, "hash", "", "hash algorithm wire label (defaults to the configured algorithm)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "lookup timeout")
	return cmd
}
