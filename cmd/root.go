package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the followmail application
var rootCmd = &cobra.Command{
	Use:   "followmail",
	Short: "Follows Gmail threads from chosen senders and to chosen recipients",
	Long: `followmail is a web backend for reading and answering the Gmail threads
of the people you follow.

Users log in with Google, pick addresses to follow as senders or as
recipients, and get the matching threads merged into one list. Replies are
sent, or saved as drafts, through the user's own Gmail account.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "followmail version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
