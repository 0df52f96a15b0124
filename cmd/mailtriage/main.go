/*
Package main is the entry point for the mailtriage CLI.

mailtriage drafts replies to inbound email from a learned pattern library
and improves from the difference between each draft and what was sent.

Usage:

	mailtriage [command]

Available Commands:

	draft       Draft a reply for one message
	batch       Draft replies for a YAML list of messages
	sent        Record the reply that was actually sent for a draft
	patterns    Inspect and manage the pattern library
	templates   Inspect response templates
	contacts    Inspect learned contacts
	history     Browse and search draft history
	learning    Inspect what the learning loop has picked up
	config      Show or create the configuration file
	serve       Run the MCP server (stdio transport)
	version     Print version information

Examples:

	mailtriage draft --from ana@vendor.com --subject "W9 request" --body "..."
	mailtriage sent 3f2c... --file reply.txt
	mailtriage learning status
*/
package main

import (
	"fmt"
	"os"

	"github.com/derek809/mailtriage/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
