package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcurator/internal/ndjson"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the links, tags and link_tags tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, a, err := setup(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Store().Migrate(cmd.Context()); err != nil {
				return err
			}
			a.Logger().Info("schema applied")
			return nil
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print link counts by crawl and summary status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, a, err := setup(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			stats, err := a.Store().Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(stats); err != nil {
				return fmt.Errorf("write stats: %w", err)
			}
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write summarized links with their tags as NDJSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			_, a, err := setup(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			links, err := a.Store().ListTagged(cmd.Context())
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = fmt.Errorf("close %s: %w", output, cerr)
					}
				}()
				w = f
			}

			enc := ndjson.NewWriter(w)
			for _, link := range links {
				if err := enc.Encode(link); err != nil {
					return err
				}
			}
			a.Logger().Info("export finished", zap.Int("links", len(links)), zap.String("output", output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	return cmd
}
