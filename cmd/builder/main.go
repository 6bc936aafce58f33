// Command builder is the Builder process entrypoint: an HTTP intake API
// (serve), a Temporal workflow/activity worker (worker), and a standalone
// policy-validation utility (validate-policy), wired by explicit
// constructor injection per spec §9's re-architecture direction.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "builder",
		Short: "Runs the data-integration module Builder",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newValidatePolicyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
