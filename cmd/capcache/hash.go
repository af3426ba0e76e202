package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"capcache/pkg/caps"
	"capcache/pkg/store"
)

func hashCmd() *cobra.Command {
	var algo string

	cmd := &cobra.Command{
		Use:   "hash <capability-file.xml>",
		Short: "Compute the fingerprint of a capability set",
		Long:  `Read a serialized capability set and print its canonical fingerprint.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read capability file: %w", err)
			}

			set, err := store.XMLCodec{}.Decode(data)
			if err != nil {
				return err
			}

			ver, err := caps.HashQuery(set, caps.NormalizeAlgorithm(algo))
			if err != nil {
				return fmt.Errorf("failed to compute fingerprint: %w", err)
			}

			fmt.Println(renderFingerprint(algo, ver, len(set.Identities), len(set.Features), len(set.Forms)))
			return nil
		},
	}

	cmd.Flags().StringVar(&algo, "hash", "sha-1", "hash algorithm (wire label)")
	return cmd
}
