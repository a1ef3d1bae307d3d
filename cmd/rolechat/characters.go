package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "List characters from the configured source",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		res, err := openResources(ctx, cfg)
		if err != nil {
			return err
		}
		defer res.Close()

		dir, err := newDirectory(cfg, res)
		if err != nil {
			return err
		}
		list, err := dir.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list characters: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tGENDER\tJOB")
		for _, c := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Gender, c.Job)
		}
		return w.Flush()
	},
}
