package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"favsync/pkg/favorites"
	"favsync/pkg/mirror"
	"favsync/pkg/packer"
	"favsync/pkg/ui"
)

var (
	albumIDs        []string
	noFavorites     bool
	username        string
	password        string
	outputDir       string
	databasePath    string
	baseURL         string
	concurrentPages int
	retries         int
	deleteAfterPack bool
	notify          bool
	dryRun          bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Mirror favorites and explicit albums",
	Long: `Download the albums given with --album or, when none are given, every
album in the favorites list, packing each chapter into a CBZ archive.

Albums that finished in an earlier run are skipped without contacting the
remote. Albums that were interrupted resume at the chapter level: chapters
already packed are skipped, pages already on disk are not fetched again.

Running favsync without a subcommand is the same as running download.`,
	Example: `  # Mirror the favorites of the stored default account
  favsync

  # Only these albums
  favsync download --album 123456 --album 234567

  # Show what would be processed
  favsync download --dry-run`,
	Args: cobra.NoArgs,
	Run:  runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addDownloadFlags(rootCmd)
	addDownloadFlags(downloadCmd)
}

func addDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&albumIDs, "album", "a", nil, "album id to download (repeatable or comma separated)")
	cmd.Flags().BoolVar(&noFavorites, "no-fav", false, "skip the favorites list")
	cmd.Flags().StringVarP(&username, "username", "u", "", "remote username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "remote password")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	cmd.Flags().StringVar(&databasePath, "database", "", "state database path")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "remote API base URL")
	cmd.Flags().IntVar(&concurrentPages, "concurrent", 0, "pages downloaded in parallel per chapter")
	cmd.Flags().IntVar(&retries, "retries", 0, "attempts per page")
	cmd.Flags().BoolVar(&deleteAfterPack, "delete-after-pack", false, "remove page files once a chapter is packed")
	cmd.Flags().BoolVar(&notify, "notify", false, "raise a desktop notification when the run ends")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the albums that would be processed and exit")
}

// downloadFlags turns the set flags into config overrides.
func downloadFlags(cmd *cobra.Command) map[string]interface{} {
	flags := map[string]interface{}{
		"output":     outputDir,
		"database":   databasePath,
		"username":   username,
		"password":   password,
		"base-url":   baseURL,
		"retries":    retries,
		"concurrent": concurrentPages,
		"album-ids":  albumIDs,
	}
	if cmd.Flags().Changed("no-fav") {
		flags["favorites"] = !noFavorites
	}
	if cmd.Flags().Changed("delete-after-pack") {
		flags["delete-after-pack"] = deleteAfterPack
	}
	return flags
}

func runDownload(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	a := setup(ctx, downloadFlags(cmd))
	defer a.Close()
	cfg := a.cfg

	var favs []string
	if len(cfg.Download.AlbumIDs) == 0 && cfg.Download.Favorites {
		if !a.client.LoggedIn() {
			a.log.Warn("not logged in, the favorites listing may be empty")
		}
		favs = favorites.NewDetector(a.client, a.store, a.log).Resolve(ctx)
	}
	ids := collectIDs(cfg.Download.AlbumIDs, favs)
	if len(ids) == 0 {
		ui.PrintInfo("Nothing to do", "no album ids given and the favorites list is empty")
		return
	}

	stage := packer.NewStage(packer.CBZ{}, a.store, a.files, cfg.Download.DeleteAfterPack, a.log)
	driver := mirror.NewDriver(a.client, a.store, stage, a.files, mirror.Options{
		Retries:         cfg.Download.Retries,
		RetryDelay:      cfg.Download.RetryDelay,
		ConcurrentPages: cfg.Download.ConcurrentPages,
		ChapterFormat:   cfg.Download.ChapterFormat,
		StripBracketed:  cfg.Download.ExtractTitle,
		ItemURLFormat:   cfg.Remote.ItemURLFormat,
	}, a.log)

	if !quiet || dryRun {
		plan := driver.Preview(ctx, ids)
		ui.PrintHighlight(fmt.Sprintf("%s to process", plural(len(plan), "album")))
		fmt.Fprintln(ui.Out, ui.PlanTable(plan))
	}
	if dryRun {
		return
	}

	var progress *ui.ProgressDisplay
	if !quiet {
		progress = ui.NewProgressDisplay(ui.Out, len(ids), verbose)
		driver.SetObserver(progress)
	}

	a.log.InfoWithFields("starting run", map[string]interface{}{
		"items":     len(ids),
		"favorites": len(favs),
		"output":    cfg.Download.OutputDir,
	})
	sum := driver.Run(ctx, ids)
	a.log.InfoWithFields("run finished", map[string]interface{}{
		"completed":  len(sum.Completed),
		"skipped":    len(sum.Skipped),
		"incomplete": len(sum.Incomplete),
		"failed":     len(sum.Failed),
		"pages":      sum.Pages,
		"duration":   sum.Duration.String(),
	})

	if progress != nil {
		progress.Complete(sum)
		fmt.Fprintln(ui.Out, ui.SummaryTable(sum))
	}
	if ctx.Err() != nil {
		ui.PrintWarning("Interrupted; run favsync again to resume")
	}

	if notify {
		ui.NewNotifier().RunFinished(sum)
	}

	if len(sum.Failed) > 0 && quiet {
		fmt.Fprintf(os.Stderr, "failed items: %v\n", sum.Failed)
	}
}

// collectIDs merges id lists in order, keeping the first occurrence of each id.
func collectIDs(explicit, favs []string) []string {
	seen := make(map[string]bool, len(explicit)+len(favs))
	var ids []string
	for _, list := range [][]string{explicit, favs} {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
