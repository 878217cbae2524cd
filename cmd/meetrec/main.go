// Package main is the entry point for the meetrec application.
package main

import (
	"os"

	"github.com/jmylchreest/meetrec/cmd/meetrec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
