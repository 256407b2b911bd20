// Seed command bulk-loads records from a JSONL file.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed <type> <file.jsonl>",
	Short: "Bulk-load records from a JSONL file",
	Long: `Seed reads one JSON object per line and stores each as a record of
the given entity type. Object keys must name declared fields; reference
and reference-set values are record identities.

Example:
  cascade seed author authors.jsonl`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, path := args[0], args[1]

		schema, err := cliConfig.buildSchema()
		if err != nil {
			fmt.Fprintln(os.Stderr, "seed:", err)
			os.Exit(exitUserError)
		}
		etype, err := schema.Type(typeName)
		if err != nil {
			fmt.Fprintln(os.Stderr, "seed:", err)
			os.Exit(exitUserError)
		}

		store, err := attachStore(schema)
		if err != nil {
			fmt.Fprintln(os.Stderr, "seed:", err)
			os.Exit(exitSysError)
		}
		defer store.Detach()

		table, err := store.Table(typeName)
		if err != nil {
			fmt.Fprintln(os.Stderr, "seed:", err)
			os.Exit(exitSysError)
		}

		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "seed:", err)
			os.Exit(exitUserError)
		}
		defer f.Close()

		count := 0
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var fields map[string]any
			if err := json.Unmarshal(line, &fields); err != nil {
				fmt.Fprintf(os.Stderr, "seed: line %d: %v\n", count+1, err)
				os.Exit(exitUserError)
			}
			rec := etype.NewRecord()
			for k, v := range fields {
				rec.Set(k, v)
			}
			if _, err := table.Set(rec); err != nil {
				fmt.Fprintf(os.Stderr, "seed: storing %s: %v\n", typeName, err)
				os.Exit(exitSysError)
			}
			count++
		}
		if err := scanner.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "seed:", err)
			os.Exit(exitSysError)
		}

		fmt.Printf("Seeded %d %s records\n", count, typeName)
		return nil
	},
}
