package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"favsync/pkg/packer"
	"favsync/pkg/repack"
	"favsync/pkg/ui"
)

var repackCmd = &cobra.Command{
	Use:   "repack",
	Short: "Rebuild archives from page directories on disk",
	Long: `Rebuild the CBZ archive of every chapter directory already on disk using
the album metadata currently stored in the database. Existing archives are
overwritten and page files are always kept.

Useful after changing the title cleaning option or when archives were
deleted.`,
	Args: cobra.NoArgs,
	Run:  runRepack,
}

func init() {
	rootCmd.AddCommand(repackCmd)
	repackCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	repackCmd.Flags().StringVar(&databasePath, "database", "", "state database path")
}

func runRepack(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	a := setupLocal(map[string]interface{}{
		"output":   outputDir,
		"database": databasePath,
	})
	defer a.Close()
	cfg := a.cfg

	stage := packer.NewStage(packer.CBZ{}, a.store, a.files, false, a.log)
	r := repack.New(a.store, stage, a.files, repack.Options{
		StripBracketed: cfg.Download.ExtractTitle,
		ChapterFormat:  cfg.Download.ChapterFormat,
		ItemURLFormat:  cfg.Remote.ItemURLFormat,
	}, a.log)

	res, err := r.Run(ctx)
	if err != nil {
		ui.PrintError("Repack failed", err.Error())
		return
	}

	ui.PrintSuccess(fmt.Sprintf("Repacked %s from %s", plural(res.Archives, "archive"), plural(res.Items, "album")))
	if len(res.Missing) > 0 {
		ui.PrintInfo("No page directory", fmt.Sprint(res.Missing))
	}
	for _, dir := range res.Failed {
		ui.PrintWarning("Could not repack", dir)
	}
}
