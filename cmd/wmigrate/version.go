package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wmigrate version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wmigrate %s\n", version)
		},
	}
}
