package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"favsync/pkg/auth"
	"favsync/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage remote credentials",
	Long: `Manage stored remote credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (FAVSYNC_USERNAME / FAVSYNC_PASSWORD, read only)

The first stored account is used when no username is configured.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store a login securely",
	Long: `Store a remote username and password in the system keychain or the
encrypted credentials file. The password is read without echo.`,
	Example: `  # Interactive login
  favsync auth login

  # Login with username
  favsync auth login myname`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Long: `Remove stored credentials.

If no username is provided, you will be shown a list of stored accounts
to choose from. You can also remove all accounts at once.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func newCredentialManager() *auth.Manager {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}
	return manager
}

func runLogin(cmd *cobra.Command, args []string) {
	manager := newCredentialManager()
	reader := bufio.NewReader(os.Stdin)

	var name string
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		fmt.Fprint(ui.Out, "Username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read username", err.Error())
			os.Exit(1)
		}
		name = strings.TrimSpace(input)
	}
	if name == "" {
		ui.PrintError("Username is required")
		os.Exit(1)
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Fprintf(ui.Out, "Account '%s' already exists. Update the password? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Fprint(ui.Out, "Password: ")
	secret, err := readPassword(reader)
	if err != nil {
		ui.PrintError("Failed to read password", err.Error())
		os.Exit(1)
	}
	if secret == "" {
		ui.PrintError("Password is required")
		os.Exit(1)
	}

	account := &auth.Account{
		Username:     name,
		Password:     secret,
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Account saved: " + name)
	if accounts, _ := manager.List(); len(accounts) == 1 {
		ui.PrintInfo("Default account", name)
	}

	fmt.Fprintln(ui.Out, "\nStored in:")
	if auth.IsKeyringAvailable() {
		fmt.Fprintln(ui.Out, "  • System keychain (primary)")
	}
	fmt.Fprintln(ui.Out, "  • Encrypted file (backup)")
	fmt.Fprintln(ui.Out, "\nRun 'favsync' to mirror your favorites, or pass --username to pick this account.")
}

func runLogout(cmd *cobra.Command, args []string) {
	manager := newCredentialManager()
	reader := bufio.NewReader(os.Stdin)

	if len(args) > 0 {
		removeAccount(manager, args[0])
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintError("No stored accounts found")
		return
	}

	if len(accounts) == 1 {
		fmt.Fprintf(ui.Out, "Remove account '%s'? (y/N): ", accounts[0].Username)
		input, _ := reader.ReadString('\n')
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			removeAccount(manager, accounts[0].Username)
		}
		return
	}

	fmt.Fprintln(ui.Out, "Select account to remove:")
	for i, account := range accounts {
		fmt.Fprintf(ui.Out, "  %d. %s\n", i+1, account.Username)
	}
	fmt.Fprintf(ui.Out, "  %d. Remove all accounts\n", len(accounts)+1)
	fmt.Fprintf(ui.Out, "  0. Cancel\n\n")

	fmt.Fprint(ui.Out, "Choice: ")
	input, _ := reader.ReadString('\n')
	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	switch {
	case choice == 0:
		return
	case choice == len(accounts)+1:
		fmt.Fprint(ui.Out, "Remove ALL accounts? This cannot be undone! (yes/N): ")
		confirm, _ := reader.ReadString('\n')
		if strings.TrimSpace(confirm) != "yes" {
			return
		}
		if err := manager.DeleteAll(); err != nil {
			ui.PrintError("Failed to remove all accounts", err.Error())
			os.Exit(1)
		}
		ui.PrintSuccess("All accounts removed")
	case choice > 0 && choice <= len(accounts):
		removeAccount(manager, accounts[choice-1].Username)
	default:
		ui.PrintError("Invalid choice")
		os.Exit(1)
	}
}

func removeAccount(manager *auth.Manager, name string) {
	if err := manager.Delete(name); err != nil {
		ui.PrintError("Failed to remove account", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Account removed: " + name)
}

func runList(cmd *cobra.Command, args []string) {
	manager := newCredentialManager()

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list accounts", err.Error())
		os.Exit(1)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'favsync auth login' to add an account")
		return
	}

	ui.PrintHighlight("Stored Accounts")
	rows := make([][]string, 0, len(accounts))
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			sanitized.Username,
			sanitized.Password,
			sanitized.LastModified.Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Fprintln(ui.Out, ui.RenderTable([]string{"#", "Username", "Password", "Last Modified"}, rows,
		[]ui.ColumnAlignment{ui.AlignRight}))
}

// readPassword reads a password from stdin without echoing when stdin is a
// terminal, and as a plain line otherwise.
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(ui.Out)
		if err == nil {
			return string(secret), nil
		}
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
