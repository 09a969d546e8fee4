package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/config"
	"github.com/marmos91/atlasfs/pkg/store/kv"
	kvbadger "github.com/marmos91/atlasfs/pkg/store/kv/badger"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	dumpDBPath    string
	dumpNamespace string
	dumpAll       bool
	dumpPrefix    string
	dumpFormat    string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "List the entries of a Badger store",
	Long: `Open the configured Badger store read-only and print its entries.

Keys are listed within the configured store namespace unless --all is given.
Keys or values that are not valid UTF-8 are printed as hex with a 0x prefix.

Examples:
  # Dump the store named in the config file
  atlasfs dump

  # Dump another database, every namespace
  atlasfs dump --db-path /var/lib/atlasfs/db --all

  # Only keys starting with "photos"
  atlasfs dump --prefix photos --format plain`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpDBPath, "db-path", "", "Badger directory (default: store.badger.db_path)")
	dumpCmd.Flags().StringVar(&dumpNamespace, "namespace", "", "Namespace to list (default: store.namespace)")
	dumpCmd.Flags().BoolVar(&dumpAll, "all", false, "List raw keys across all namespaces")
	dumpCmd.Flags().StringVar(&dumpPrefix, "prefix", "", "Only list keys with this prefix")
	dumpCmd.Flags().StringVar(&dumpFormat, "format", "table", "Output format (table|plain)")
}

type dumpEntry struct {
	key   string
	value string
}

func runDump(cmd *cobra.Command, args []string) error {
	if dumpFormat != "table" && dumpFormat != "plain" {
		return fmt.Errorf("unknown format %q: must be table or plain", dumpFormat)
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	badgerCfg, err := config.BadgerConfig(&cfg.Store)
	if err != nil {
		return fmt.Errorf("invalid badger config: %w", err)
	}
	if dumpDBPath != "" {
		badgerCfg.DBPath = dumpDBPath
	}
	badgerCfg.ReadOnly = true
	badgerCfg.GCSchedule = ""

	ctx := cmd.Context()

	db, err := kvbadger.Open(ctx, badgerCfg, logger.Default())
	if err != nil {
		return err
	}

	var store kv.Store = db
	if !dumpAll {
		ns := cfg.Store.Namespace
		if cmd.Flags().Changed("namespace") {
			ns = dumpNamespace
		}
		store = kv.WithNamespace(db, ns)
	}
	defer func() { _ = store.Close() }()

	var entries []dumpEntry
	err = store.Scan(ctx, []byte(dumpPrefix), func(key, value []byte) error {
		entries = append(entries, dumpEntry{key: printable(key), value: printable(value)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if dumpFormat == "plain" {
		for _, e := range entries {
			fmt.Fprintf(out, "%s\t%s\n", e.key, e.value)
		}
		return nil
	}

	printEntries(out, entries)
	return nil
}

func printEntries(w io.Writer, entries []dumpEntry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Value"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, e := range entries {
		table.Append([]string{e.key, e.value})
	}
	table.Render()

	fmt.Fprintf(w, "\n%d entries\n", len(entries))
}

func printable(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return "0x" + hex.EncodeToString(b)
}
