package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal/devserver"
)

var (
	inspectFormat     string
	inspectSampleRows int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [database-path]",
	Short: "Inspect the dev backend database",
	Long: `Inspect the schema and contents of a dev backend SQLite database.

This command provides detailed information about:
  • Database schema (tables, columns, types)
  • Sample data from each table
  • Row counts

The database is opened read-only.

Examples:
  chat-langchain inspect                          # Inspect ./devserver.db
  chat-langchain inspect /tmp/chat.db             # Inspect a specific database
  chat-langchain inspect --format json --sample 5 # JSON output with 5 sample rows`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := devserverDB
		if len(args) > 0 {
			dbPath = args[0]
		}
		if inspectFormat != "text" && inspectFormat != "json" {
			return fmt.Errorf("unsupported format: %s (use text or json)", inspectFormat)
		}

		db, err := devserver.OpenReadOnly(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		tables, err := devserver.Inspect(cmd.Context(), db, inspectSampleRows)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if inspectFormat == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{"database": dbPath, "tables": tables})
		}
		printInspection(out, dbPath, tables)
		return nil
	},
}

func printInspection(out io.Writer, dbPath string, tables []devserver.TableInfo) {
	if len(tables) == 0 {
		fmt.Fprintln(out, "⚠️  No tables found in database")
		return
	}

	fmt.Fprintf(out, "📋 Database: %s\n", dbPath)
	fmt.Fprintf(out, "📊 Found %d table(s)\n\n", len(tables))

	for _, table := range tables {
		fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Fprintf(out, "📦 Table: %s\n", table.Name)
		fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Fprintf(out, "📊 Rows: %d\n\n", table.Rows)

		fmt.Fprintln(out, "📐 Schema:")
		for _, col := range table.Columns {
			pk := ""
			if col.PrimaryKey {
				pk = " [PRIMARY KEY]"
			}
			notNull := ""
			if col.NotNull {
				notNull = " NOT NULL"
			}
			fmt.Fprintf(out, "  • %s: %s%s%s\n", col.Name, col.Type, notNull, pk)
		}
		fmt.Fprintln(out)

		if len(table.Sample) > 0 {
			fmt.Fprintf(out, "📄 Sample Data (first %d rows):\n", len(table.Sample))
			for i, row := range table.Sample {
				fmt.Fprintf(out, "\n  Row %d:\n", i+1)
				for _, col := range table.Columns {
					val := row[col.Name]
					if strings.Contains(val, "\n") {
						val = "\n      " + strings.ReplaceAll(val, "\n", "\n      ")
					}
					fmt.Fprintf(out, "    %s: %s\n", col.Name, val)
				}
			}
			fmt.Fprintln(out)
		}
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of sample rows to show")
}
