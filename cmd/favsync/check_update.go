package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"favsync/pkg/ui"
	"favsync/pkg/updates"
)

var checkUpdateCmd = &cobra.Command{
	Use:     "check-update",
	Aliases: []string{"updates"},
	Short:   "Report authors with albums not yet mirrored",
	Long: `Search the remote for every author recorded in the local database and
report those whose newest search result is not stored locally.

Only the first result of the first search page is inspected, so an author
with several new albums is reported once.`,
	Args: cobra.NoArgs,
	Run:  runCheckUpdate,
}

func init() {
	rootCmd.AddCommand(checkUpdateCmd)
	checkUpdateCmd.Flags().StringVarP(&username, "username", "u", "", "remote username")
	checkUpdateCmd.Flags().StringVarP(&password, "password", "p", "", "remote password")
	checkUpdateCmd.Flags().StringVar(&databasePath, "database", "", "state database path")
	checkUpdateCmd.Flags().StringVar(&baseURL, "base-url", "", "remote API base URL")
}

func runCheckUpdate(cmd *cobra.Command, args []string) {
	ctx, stop := signalContext()
	defer stop()

	a := setup(ctx, map[string]interface{}{
		"username": username,
		"password": password,
		"database": databasePath,
		"base-url": baseURL,
	})
	defer a.Close()

	report, err := updates.NewReporter(a.client, a.store, a.log).Check(ctx)
	if err != nil {
		ui.PrintError("Update check failed", err.Error())
		return
	}
	if len(report.Results) == 0 {
		ui.PrintWarning("No authors recorded yet; download some albums first")
		return
	}

	for _, r := range report.Errors() {
		ui.PrintWarning("Checking "+r.Author+" failed", r.Err)
	}

	found := report.Updates()
	if len(found) == 0 {
		ui.PrintSuccess(fmt.Sprintf("All %s up to date", plural(len(report.Results), "author")))
		return
	}
	ui.PrintHighlight(fmt.Sprintf("%s with unseen albums", plural(len(found), "author")))
	fmt.Fprintln(ui.Out, ui.UpdatesTable(found))
}
