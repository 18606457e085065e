// Package main provides the entry point for the addresolve CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/addresolve/cmd/addresolve/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
