package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mangadl/internal/acquire"
	"mangadl/internal/catalog"
	"mangadl/internal/config"
	"mangadl/internal/document"
	"mangadl/internal/page"
)

var (
	cfgFile string
	verbose bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mangadl",
	Short: "Download manga chapters as page images and a single PDF",
	Long: `mangadl searches the lib.social catalogue, lists chapters of a title and
downloads a chapter into <library>/<title>/Volume_<v>/Chapter_<c>, one image
per page plus a PDF of every page that could be saved.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd, downloadCmd, searchCmd, chaptersCmd, pagesCmd)
}

func newCatalog(c config.Config) *catalog.Client {
	return catalog.NewClient(catalog.Options{
		BaseURL:   c.APIBaseURL,
		ImageHost: c.ImageHost,
		Timeout:   c.MetadataTimeout,
		Filters: catalog.Filters{
			SiteIDs:  c.Search.SiteIDs,
			Statuses: c.Search.Statuses,
			Types:    c.Search.Types,
		},
		ThumbWidth:  c.ThumbnailWidth,
		ThumbHeight: c.ThumbnailHeight,
	})
}

func newPipeline(c config.Config, client *catalog.Client) *acquire.Pipeline {
	return acquire.New(c.LibraryDir, client, page.NewDownloader(c.PageTimeout), document.NewAssembler())
}

// chapterFlags registers --slug, --volume and --chapter on cmd.
func chapterFlags(cmd *cobra.Command, slug, volume, chapter *string) {
	cmd.Flags().StringVar(slug, "slug", "", "title slug, e.g. 118--hellsing")
	cmd.Flags().StringVar(volume, "volume", "", "volume number")
	cmd.Flags().StringVar(chapter, "chapter", "", "chapter number")
	for _, name := range []string{"slug", "volume", "chapter"} {
		_ = cmd.MarkFlagRequired(name)
	}
}
