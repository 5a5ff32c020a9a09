package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "castlegate",
		Short:   "Castlegate — cost-control gateway for the chess coach",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newMemoCmd(),
		newTrialCmd(),
		newAuditCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
