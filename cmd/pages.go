package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mangadl/internal/model"
)

var pgSlug, pgVolume, pgChapter string

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Print the resolved page URLs of a chapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := model.ChapterRef{Slug: pgSlug, Volume: pgVolume, Chapter: pgChapter}
		pageURLs, err := newCatalog(cfg).Pages(cmd.Context(), ref)
		if err != nil {
			return err
		}
		for _, u := range pageURLs {
			fmt.Fprintln(cmd.OutOrStdout(), u)
		}
		return nil
	},
}

func init() {
	chapterFlags(pagesCmd, &pgSlug, &pgVolume, &pgChapter)
}
