package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"datimsync/pkg/imap"
)

type imapFlags struct {
	country    string
	countryOrg string
	format     string
}

func newImapCmd(opts *options) *cobra.Command {
	f := &imapFlags{}
	cmd := &cobra.Command{
		Use:   "imap",
		Short: "Work with country indicator maps (I-MAP CSV files)",
	}
	cmd.PersistentFlags().StringVar(&f.country, "country", "", "country code")
	cmd.PersistentFlags().StringVar(&f.countryOrg, "country-org", "", "country OCL organization")
	cmd.PersistentFlags().StringVar(&f.format, "format", "csv", "output format: csv or json")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Check that every row carries every required field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, allowed, err := loadImap(cmd, opts, f, args[0])
			if err != nil {
				return err
			}
			if err := m.Validate(allowed); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s: %d rows OK\n", args[0], len(m.Rows))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show FILE",
		Short: "Print an I-MAP as CSV or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := loadImap(cmd, opts, f, args[0])
			if err != nil {
				return err
			}
			return m.Display(out(cmd), imap.ParseFormat(f.format))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "diff OLD NEW",
		Short: "List rows added or removed between two I-MAPs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := loadImap(cmd, opts, f, args[0])
			if err != nil {
				return err
			}
			b, _, err := loadImap(cmd, opts, f, args[1])
			if err != nil {
				return err
			}
			d := imap.Diff(a, b)
			if d.Empty() {
				fmt.Fprintln(out(cmd), "no changes")
				return nil
			}
			w := out(cmd)
			fmt.Fprintf(w, "added %d, removed %d\n", len(d.Added), len(d.Removed))
			for _, r := range d.Added {
				fmt.Fprintf(w, "+ %s %s\n", r["DATIM_Indicator_ID"], r["DATIM_Disag_ID"])
			}
			for _, r := range d.Removed {
				fmt.Fprintf(w, "- %s %s\n", r["DATIM_Indicator_ID"], r["DATIM_Disag_ID"])
			}
			return nil
		},
	})
	return cmd
}

// loadImap reads path as CSV. The period comes from --period and is checked
// against the configured allowed periods.
func loadImap(cmd *cobra.Command, opts *options, f *imapFlags, path string) (*imap.Imap, []string, error) {
	eff, err := opts.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer fh.Close()
	m, err := imap.LoadCSV(fh, f.country, f.countryOrg, opts.period)
	if err != nil {
		return nil, nil, err
	}
	return m, eff.Config.Sync.AllowedPeriods, nil
}
