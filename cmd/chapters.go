package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mangadl/internal/model"
)

var chaptersCmd = &cobra.Command{
	Use:   "chapters <slug>",
	Short: "List the chapters of a title grouped by volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newCatalog(cfg).ListChapters(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, group := range model.GroupByVolume(entries) {
			fmt.Fprintf(out, "Volume %s\n", group.Volume)
			for _, ch := range group.Chapters {
				fmt.Fprintf(out, "  %s  %s\n", ch.Number, ch.Name)
			}
		}
		return nil
	},
}
