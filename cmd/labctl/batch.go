package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/async"
	"github.com/joseph-ayodele/labreports/internal/ingest"
)

type batchFlags struct {
	patient, clinic, gender string
	workers                 int
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.patient, "patient", "", "patient UUID (required)")
	cmd.Flags().StringVar(&f.clinic, "clinic", "", "clinic UUID (required)")
	cmd.Flags().StringVar(&f.gender, "gender", "", "patient gender for reference ranges")
	cmd.Flags().IntVar(&f.workers, "workers", 4, "documents in flight")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("clinic")
}

func (f *batchFlags) target() (ingest.Target, error) {
	p, c, err := parseTarget(f.patient, f.clinic)
	if err != nil {
		return ingest.Target{}, err
	}
	return ingest.Target{PatientID: p, ClinicID: c, Gender: constants.ParseGender(f.gender)}, nil
}

// batchCmd submits every supported file under a directory. The daemon reads
// the files itself, so paths are sent absolute and must be visible to it.
// Thread ids derive from content, so rerunning over the same tree skips files
// already submitted.
func batchCmd(g *globals) *cobra.Command {
	var (
		f             batchFlags
		includeHidden bool
	)
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Submit every PDF and image under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := f.target()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			client, closeConn, err := g.dial()
			if err != nil {
				return err
			}
			defer closeConn()

			b := ingest.NewBatch(client, g.logger, async.WithWorkers(f.workers), async.WithProcessTimeout(g.timeout))
			results, stats, err := b.SubmitDirectory(cmd.Context(), target, root, !includeHidden)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"root": root, "stats": stats, "results": results})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "also submit hidden files and directories")
	return cmd
}

func watchCmd(g *globals) *cobra.Command {
	var (
		f           batchFlags
		initialScan bool
		debounce    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Submit documents as they appear in one or more directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := f.target()
			if err != nil {
				return err
			}
			roots := make([]string, 0, len(args))
			for _, a := range args {
				abs, err := filepath.Abs(a)
				if err != nil {
					return err
				}
				roots = append(roots, abs)
			}
			client, closeConn, err := g.dial()
			if err != nil {
				return err
			}
			defer closeConn()

			enc := json.NewEncoder(os.Stdout)
			b := ingest.NewBatch(client, g.logger, async.WithWorkers(f.workers), async.WithProcessTimeout(g.timeout))
			err = b.Watch(cmd.Context(), ingest.WatchConfig{Roots: roots, InitialScan: initialScan, Debounce: debounce}, target, func(r ingest.FileResult) {
				_ = enc.Encode(r)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&initialScan, "initial-scan", false, "also submit files already present")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is submitted")
	return cmd
}
