package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"capcache/pkg/store"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the capability datasets",
	}
	cmd.AddCommand(cacheLsCmd())
	return cmd
}

func cacheLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List cached capability sets",
		Long:  `List the entries of the configured system and user datasets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rows := [][]string{}
			for _, tier := range []struct {
				name string
				dir  string
			}{
				{name: "system", dir: cfg.SystemDBPath},
				{name: "user", dir: cfg.UserDBPath},
			} {
				if tier.dir == "" {
					continue
				}
				tierRows, err := listDataset(tier.name, tier.dir)
				if err != nil {
					return err
				}
				rows = append(rows, tierRows...)
			}

			if len(rows) == 0 {
				fmt.Println(mutedStyle.Render("no cached capability sets"))
				return nil
			}
			printDatasetTable(rows)
			return nil
		},
	}
}

func listDataset(tier, dir string) ([][]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory %s: %w", dir, err)
	}

	codec := store.XMLCodec{}
	var rows [][]string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".xml") || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset file %s: %w", name, err)
		}
		set, err := codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode dataset file %s: %w", name, err)
		}

		algo := name
		if idx := strings.Index(name, "_"); idx > 0 {
			algo = name[:idx]
		}
		rows = append(rows, []string{
			tier,
			algo,
			set.Node,
			fmt.Sprintf("%d", len(set.Features)),
		})
	}
	return rows, nil
}
