package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joseph-ayodele/labreports/constants"
	"github.com/joseph-ayodele/labreports/internal/gcp"
	"github.com/joseph-ayodele/labreports/internal/server"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

func submitCmd(g *globals) *cobra.Command {
	var (
		file, patient, clinic, thread, date, gender string
		askPassword                                 bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Start an extraction workflow for one PDF or image",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientID, clinicID, err := parseTarget(patient, clinic)
			if err != nil {
				return err
			}
			loc := file
			if !gcp.IsGSURI(loc) {
				if loc, err = filepath.Abs(file); err != nil {
					return err
				}
			}
			req := workflow.SubmitRequest{
				ThreadID:   thread,
				Path:       loc,
				PatientID:  patientID,
				ClinicID:   clinicID,
				ReportDate: date,
				Gender:     constants.ParseGender(gender),
			}
			if askPassword {
				if req.Password, err = readPassword(); err != nil {
					return err
				}
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.Submit(ctx, req)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "local path or gs://bucket/object (required)")
	cmd.Flags().StringVar(&patient, "patient", "", "patient UUID (required)")
	cmd.Flags().StringVar(&clinic, "clinic", "", "clinic UUID (required)")
	cmd.Flags().StringVar(&thread, "thread", "", "thread id, generated when empty")
	cmd.Flags().StringVar(&date, "date", "", "report date, overrides the date found in the document")
	cmd.Flags().StringVar(&gender, "gender", "", "patient gender for reference ranges (male|female)")
	cmd.Flags().BoolVar(&askPassword, "password", false, "prompt for the PDF password up front")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("clinic")
	return cmd
}

func resumePasswordCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "resume-password <thread_id>",
		Short: "Provide the password for a workflow waiting on an encrypted PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword()
			if err != nil {
				return err
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.ResumeWithPassword(ctx, args[0], password)
			})
		},
	}
}

func resumeDateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "resume-date <thread_id> <date>",
		Short: "Provide the report date for a workflow waiting on one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.ResumeWithDate(ctx, args[0], args[1])
			})
		},
	}
}

func statusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status <thread_id>",
		Short: "Show where a workflow is",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.GetStatus(ctx, args[0])
			})
		},
	}
}

// readPassword prompts on a terminal without echo, or reads one line from a
// pipe so scripts can feed it.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "PDF password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password on stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseTarget(patient, clinic string) (uuid.UUID, uuid.UUID, error) {
	p, err := uuid.Parse(patient)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--patient must be a UUID: %w", err)
	}
	c, err := uuid.Parse(clinic)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--clinic must be a UUID: %w", err)
	}
	return p, c, nil
}
