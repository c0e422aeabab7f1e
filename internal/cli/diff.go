package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"datimsync/pkg/diff"
	"datimsync/pkg/models"
	"datimsync/pkg/snapshot"
)

func newDiffCmd() *cobra.Command {
	var (
		batch  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Compare two saved snapshots",
		Long: `diff compares two snapshot files and lists what an import would create,
update or leave orphaned. With --batch only that batch is compared; the
files may be snapshots, such as the *-dhis2-converted.json and
*-ocl-cleaned.json files a run writes, or bare partitions.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldSnap, err := readSnapshot(args[0], batch)
			if err != nil {
				return err
			}
			newSnap, err := readSnapshot(args[1], batch)
			if err != nil {
				return err
			}
			res := diff.Diff(oldSnap, newSnap)
			if asJSON {
				enc := json.NewEncoder(out(cmd))
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printDiff(out(cmd), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&batch, "batch", "", "read both files as a single partition of this batch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func readSnapshot(path, batch string) (*snapshot.Snapshot, error) {
	if batch == "" {
		s, err := snapshot.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read snapshot %s: %w", path, err)
		}
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", path, err)
	}
	// files written by a run hold a snapshot with the batch inside
	var top map[string]json.RawMessage
	if err := json.Unmarshal(b, &top); err == nil {
		if _, ok := top["batches"]; ok {
			s, err := snapshot.Decode(bytes.NewReader(b), "file:"+path)
			if err != nil {
				return nil, err
			}
			p, ok := s.Lookup(batch)
			if !ok && len(s.Batches) > 0 {
				return nil, fmt.Errorf("%s has no batch %q (batches: %s)", path, batch, strings.Join(s.BatchNames(), ", "))
			}
			if !ok {
				p = snapshot.NewPartition()
			}
			one := snapshot.New()
			one.Set(batch, p)
			return one, nil
		}
	}
	p, err := snapshot.DecodePartition(b, "file:"+path)
	if err != nil {
		return nil, err
	}
	s := snapshot.New()
	s.Set(batch, p)
	return s, nil
}

func printDiff(w io.Writer, res *diff.Result) {
	for _, name := range res.BatchNames() {
		fmt.Fprintf(w, "%s\n", name)
		for _, rt := range models.ResourceTypes {
			b := res.Bucket(name, rt)
			fmt.Fprintf(w, "  %-12s create %s, update %s, unchanged %s, orphaned %s\n", rt,
				humanize.Comma(int64(len(b.ToCreate))), humanize.Comma(int64(len(b.ToUpdate))),
				humanize.Comma(int64(len(b.Unchanged))), humanize.Comma(int64(len(b.Orphaned))))
		}
	}
	s := res.Summary()
	if res.Empty() {
		fmt.Fprintln(w, "no changes")
		return
	}
	fmt.Fprintf(w, "total: %d to create, %d to update\n", s.Create, s.Update)
}
