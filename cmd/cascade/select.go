// Select command resolves one record by filter and selects it at its level,
// cascading the change through the chain.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

var selectCmd = &cobra.Command{
	Use:   "select <type> <field=value>...",
	Short: "Select a record at one chain level",
	Long: `Select resolves exactly one record of the given type by the filter
and selects it, cascading the change to every other level.

Example:
  cascade select book title="The Go Programming Language"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, filterArgs := args[0], args[1:]

		c, cleanup, err := buildChain()
		if err != nil {
			fmt.Fprintln(os.Stderr, "select:", err)
			os.Exit(exitSysError)
		}
		defer cleanup()

		link, err := c.LinkFor(typeName)
		if err != nil {
			fmt.Fprintln(os.Stderr, "select:", err)
			os.Exit(exitUserError)
		}
		filter, err := parseFilter(link.Type(), filterArgs)
		if err != nil {
			fmt.Fprintln(os.Stderr, "select:", err)
			os.Exit(exitUserError)
		}
		if err := link.SelectBy(filter); err != nil {
			if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrAmbiguous) {
				fmt.Fprintln(os.Stderr, "select:", err)
				os.Exit(exitUserError)
			}
			fmt.Fprintln(os.Stderr, "select:", err)
			os.Exit(exitSysError)
		}

		if err := printChain(c); err != nil {
			fmt.Fprintln(os.Stderr, "select:", err)
			os.Exit(exitSysError)
		}
		return nil
	},
}
