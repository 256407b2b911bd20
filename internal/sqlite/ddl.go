// This file generates the relational DDL from the declared entity schema.
package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/cascade/pkg/types"
)

// ddlFor builds CREATE TABLE statements for every entity type and a
// junction table for every reference-set field.
func ddlFor(schema *types.Schema) string {
	var sb strings.Builder
	for _, etype := range schema.Types() {
		sb.WriteString(fmt.Sprintf("CREATE TABLE %q (\n", etype.Name))
		sb.WriteString("\tid TEXT PRIMARY KEY")
		for _, f := range etype.Fields {
			if f.Type == types.FieldRefSet {
				continue
			}
			sb.WriteString(fmt.Sprintf(",\n\t%q %s", f.Name, columnType(f)))
		}
		sb.WriteString("\n);\n")

		for _, f := range etype.Fields {
			if f.Type != types.FieldRefSet {
				continue
			}
			sb.WriteString(fmt.Sprintf(
				"CREATE TABLE %q (\n\tfrom_id TEXT NOT NULL,\n\tto_id TEXT NOT NULL,\n\tPRIMARY KEY (from_id, to_id)\n);\n",
				junctionName(etype.Name, f.Name)))
		}
	}
	return sb.String()
}

// junctionName names the junction table backing a reference-set field.
func junctionName(typeName, fieldName string) string {
	return typeName + "__" + fieldName
}

// columnType maps a declared field type to a SQLite column type.
func columnType(f types.Field) string {
	switch f.Type {
	case types.FieldInteger:
		return "INTEGER"
	case types.FieldBoolean:
		return "INTEGER"
	default:
		// text, timestamp (RFC 3339), and to-one references all store TEXT.
		return "TEXT"
	}
}
