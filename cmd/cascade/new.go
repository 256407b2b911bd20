// New command creates, selects, and saves a record beneath the selected
// parent, exercising deferred parent attachment.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cascade/pkg/chain"
)

var newUnder []string

var newCmd = &cobra.Command{
	Use:   "new <type> <field=value>... [--under field=value]",
	Short: "Create and save a record beneath the selected parent",
	Long: `New composes an unsaved record of the given type from field=value
pairs, selects it, and saves it. Saving attaches the record to the parent
level's selection through the resolved relation.

--under narrows the parent selection first; it may repeat to build a
multi-field filter on the parent type.

Example:
  cascade new chapter title=Introduction number=1 --under title=MyBook`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, fieldArgs := args[0], args[1:]

		c, cleanup, err := buildChain()
		if err != nil {
			fmt.Fprintln(os.Stderr, "new:", err)
			os.Exit(exitSysError)
		}
		defer cleanup()

		link, err := c.LinkFor(typeName)
		if err != nil {
			fmt.Fprintln(os.Stderr, "new:", err)
			os.Exit(exitUserError)
		}

		if len(newUnder) > 0 {
			if link.Parent() == nil {
				fmt.Fprintf(os.Stderr, "new: %s has no parent level\n", typeName)
				os.Exit(exitUserError)
			}
			parentFilter, err := parseFilter(link.Parent().Type(), newUnder)
			if err != nil {
				fmt.Fprintln(os.Stderr, "new:", err)
				os.Exit(exitUserError)
			}
			if err := link.Parent().SelectBy(parentFilter); err != nil {
				fmt.Fprintln(os.Stderr, "new:", err)
				os.Exit(exitUserError)
			}
		}

		rec := link.Type().NewRecord()
		for _, arg := range fieldArgs {
			filter, err := parseFilter(link.Type(), []string{arg})
			if err != nil {
				fmt.Fprintln(os.Stderr, "new:", err)
				os.Exit(exitUserError)
			}
			for k, v := range filter {
				rec.Set(k, v)
			}
		}

		if err := link.Select(rec); err != nil {
			if errors.Is(err, chain.ErrUnlinkedParent) {
				fmt.Fprintln(os.Stderr, "new:", err)
				os.Exit(exitUserError)
			}
			fmt.Fprintln(os.Stderr, "new:", err)
			os.Exit(exitSysError)
		}
		if err := link.Save(); err != nil {
			fmt.Fprintln(os.Stderr, "new:", err)
			os.Exit(exitSysError)
		}

		if err := printChain(c); err != nil {
			fmt.Fprintln(os.Stderr, "new:", err)
			os.Exit(exitSysError)
		}
		return nil
	},
}

func init() {
	newCmd.Flags().StringArrayVar(&newUnder, "under", nil, "parent filter field=value (repeatable)")
}
