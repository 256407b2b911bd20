// Sibling navigation commands: first, last, next, prev.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cascade/pkg/chain"
)

var firstCmd = &cobra.Command{
	Use:   "first <type>",
	Short: "Select the first candidate at one chain level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNav("first", args[0], (*chain.Link).SelectFirst)
	},
}

var lastCmd = &cobra.Command{
	Use:   "last <type>",
	Short: "Select the last candidate at one chain level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNav("last", args[0], (*chain.Link).SelectLast)
	},
}

var nextCmd = &cobra.Command{
	Use:   "next <type>",
	Short: "Select the next sibling at one chain level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNav("next", args[0], (*chain.Link).SelectNextSibling)
	},
}

var prevCmd = &cobra.Command{
	Use:   "prev <type>",
	Short: "Select the previous sibling at one chain level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNav("prev", args[0], (*chain.Link).SelectPreviousSibling)
	},
}

// runNav builds the chain, applies one navigation operation at the named
// level, and prints the settled state.
func runNav(name, typeName string, op func(*chain.Link) error) error {
	c, cleanup, err := buildChain()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(exitSysError)
	}
	defer cleanup()

	link, err := c.LinkFor(typeName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(exitUserError)
	}
	if err := op(link); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(exitSysError)
	}

	if err := printChain(c); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(exitSysError)
	}
	return nil
}
