package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-slicescan"
)

func init() {
	describeCmd := &cobra.Command{
		Use:   "describe [flags] FILE...",
		Short: "Write the recovery set manifest of the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDescribe,
	}
	describeCmd.Flags().Int("block-size", 1<<20, "block size in bytes, a multiple of 4")
	describeCmd.Flags().StringP("output", "o", "", "manifest path (stdout when empty)")
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	bs, _ := cmd.Flags().GetInt("block-size")
	out, _ := cmd.Flags().GetString("output")
	log := newLogger()

	rs, err := slicescan.Describe(cmd.Context(), afero.NewOsFs(), args, bs)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create manifest: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := slicescan.WriteManifest(w, rs); err != nil {
		return err
	}
	log.Info("manifest written", "files", len(rs.Files), "blocks", len(rs.Blocks), "block_size", bs)
	return nil
}
