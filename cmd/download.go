package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mangadl/internal/model"
)

var dlSlug, dlVolume, dlChapter string

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download one chapter in the foreground",
	Example: `  mangadl download --slug 118--hellsing --volume 1 --chapter 1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := model.ChapterRef{Slug: dlSlug, Volume: dlVolume, Chapter: dlChapter}
		if err := ref.Validate(); err != nil {
			return err
		}
		pipeline := newPipeline(cfg, newCatalog(cfg))

		notes := make(chan model.Notification)
		go pipeline.Run(cmd.Context(), ref, notes)

		var result string
		for n := range notes {
			printNotification(cmd.OutOrStdout(), n)
			if n.Final {
				result = n.OutputDir
			}
		}
		if result == "" {
			return fmt.Errorf("nothing downloaded for %s", ref)
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	chapterFlags(downloadCmd, &dlSlug, &dlVolume, &dlChapter)
}

func printNotification(w io.Writer, n model.Notification) {
	marker := " "
	switch n.Severity {
	case model.SeveritySuccess:
		marker = "+"
	case model.SeverityError:
		marker = "!"
	}
	fmt.Fprintf(w, "%s %s [%s] %s\n", n.Time.Format("15:04:05"), marker, n.State, n.Message)
}
