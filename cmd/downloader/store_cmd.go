package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/store"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the persistent store",
	}

	cmd.AddCommand(newStoreInspectCmd())

	return cmd
}

func newStoreInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Dump the JSON store for debugging",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			storePath := config.DefaultStorePath(cc.Cfg.BasePath)

			doc, err := store.Load(storePath)
			if err != nil {
				return fmt.Errorf("loading store: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			return enc.Encode(doc)
		},
	}
}
