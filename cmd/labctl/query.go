package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/labreports/internal/reports"
	"github.com/joseph-ayodele/labreports/internal/server"
)

func reportsCmd(g *globals) *cobra.Command {
	var limit, skip int
	cmd := &cobra.Command{
		Use:   "reports <patient_id>",
		Short: "List a patient's lab reports, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("patient_id must be a UUID: %w", err)
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.ListReports(ctx, patientID, limit, skip)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", reports.DefaultLimit, "page size")
	cmd.Flags().IntVar(&skip, "skip", 0, "reports to skip")
	return cmd
}

func reportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "report <patient_id> <report_id>",
		Short: "Show one report with its biomarkers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("patient_id must be a UUID: %w", err)
			}
			reportID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("report_id must be a UUID: %w", err)
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.GetReport(ctx, patientID, reportID)
			})
		},
	}
}

func trendsCmd(g *globals) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "trends <patient_id>",
		Short: "List a patient's biomarker trends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("patient_id must be a UUID: %w", err)
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.ListTrends(ctx, patientID, category)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only this category (CBC, LIPID, ...)")
	return cmd
}

func historyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "history <patient_id> <biomarker>",
		Short: "Show every reading of one biomarker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("patient_id must be a UUID: %w", err)
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.BiomarkerHistory(ctx, patientID, args[1])
			})
		},
	}
}

func exportCmd(g *globals) *cobra.Command {
	var category, out string
	cmd := &cobra.Command{
		Use:   "export <patient_id>",
		Short: "Write a patient's trends to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("patient_id must be a UUID: %w", err)
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				res, err := c.ExportTrends(ctx, patientID, category)
				if err != nil {
					return nil, err
				}
				path := out
				if path == "" {
					path = res.Filename
				}
				if dir := filepath.Dir(path); dir != "." {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return nil, err
					}
				}
				if err := os.WriteFile(path, res.XLSX, 0o644); err != nil {
					return nil, err
				}
				return map[string]any{"file": path, "bytes": len(res.XLSX), "uri": res.URI}, nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path, defaults to the server-suggested file name")
	return cmd
}
