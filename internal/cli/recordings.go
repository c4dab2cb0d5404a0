package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/replay"
)

func NewRecordingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordings",
		Short: "Manage saved recordings",
	}
	cmd.AddCommand(newRecordingsListCommand(rootOpts))
	cmd.AddCommand(newRecordingsExportCommand(rootOpts))
	cmd.AddCommand(newRecordingsImportCommand(rootOpts))
	cmd.AddCommand(newRecordingsDeleteCommand(rootOpts))
	return cmd
}

// openStore opens the recordings database named by the configuration.
func (o *RootOptions) openStore() (*replay.Store, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return replay.OpenStore(cfg.Record.Database)
}

func newRecordingsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved recordings, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			list, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				if list == nil {
					list = []replay.Recording{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No recordings.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCREATED\tENTRIES\tDURATION\tBYTES")
			for _, rec := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2fs\t%d\n", rec.ID, rec.Name, rec.CreatedAt.UTC().Format(time.RFC3339), rec.Entries, rec.Duration, rec.Size)
			}
			return tw.Flush()
		},
	}
}

func newRecordingsExportCommand(opts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a recording to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			data, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".crab"
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write recording: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <id>.crab)")
	return cmd
}

func newRecordingsImportCommand(opts *RootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a recording file in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read recording: %w", err)
			}
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			rec, err := store.Save(cmd.Context(), name, data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "recording name (default file name)")
	return cmd
}

func newRecordingsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Delete(cmd.Context(), args[0])
		},
	}
}
