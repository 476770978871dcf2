package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tunetag/internal/config"
)

func newInitConfigCommand() *cobra.Command {
	var path string
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Create a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			out := cmd.OutOrStdout()

			if _, err := os.Stat(path); err == nil && !force {
				fmt.Fprintf(out, "Config file already exists at: %s\n", path)
				fmt.Fprintln(out, "Use --force to overwrite it.")
				return nil
			}

			if err := config.SaveConfigFile(config.DefaultConfig(), path); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}

			fmt.Fprintf(out, "Created default config file at: %s\n", path)
			fmt.Fprintln(out, "\nYou can now edit this file to customize your settings.")
			fmt.Fprintln(out, "Notable options:")
			fmt.Fprintln(out, "  parallel_jobs: 1-10 (files processed at once)")
			fmt.Fprintln(out, "  library_dir: move tagged files here as Artist/Album")
			fmt.Fprintln(out, "  metadata_lookup.acoustid_api_key: enables acoustic identification (needs fpcalc)")
			fmt.Fprintln(out, "  metadata_lookup.lastfm_api_key: enables genre tags from Last.fm")
			fmt.Fprintln(out, "  metadata_lookup.discogs.user_agent: enables the Discogs fallback")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Where to write the config file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
