// Command labctl drives a labreportsd instance: submit and resume extraction
// workflows, query reports and trends, export workbooks, and batch or watch
// directories of lab reports.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joseph-ayodele/labreports/internal/server"
)

type globals struct {
	addr    string
	timeout time.Duration
	verbose bool
	logger  *slog.Logger
}

func main() {
	g := &globals{}
	root := &cobra.Command{
		Use:           "labctl",
		Short:         "Lab report extraction client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if g.verbose {
				level = slog.LevelDebug
			}
			g.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(g.logger)
		},
	}
	root.PersistentFlags().StringVar(&g.addr, "addr", envOr("LABREPORTS_ADDR", "localhost:8080"), "labreportsd gRPC address")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 5*time.Minute, "per-call timeout")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		submitCmd(g),
		resumePasswordCmd(g),
		resumeDateCmd(g),
		statusCmd(g),
		reportsCmd(g),
		reportCmd(g),
		trendsCmd(g),
		historyCmd(g),
		exportCmd(g),
		batchCmd(g),
		watchCmd(g),
		catalogCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

// dial opens a connection to the daemon. The caller closes it.
func (g *globals) dial() (*server.Client, func(), error) {
	conn, err := grpc.NewClient(g.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", g.addr, err)
	}
	return server.NewClient(conn), func() { _ = conn.Close() }, nil
}

// call runs fn against a fresh client under the per-call timeout.
func (g *globals) call(cmd *cobra.Command, fn func(ctx context.Context, c *server.Client) (any, error)) error {
	c, closeConn, err := g.dial()
	if err != nil {
		return err
	}
	defer closeConn()
	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()
	out, err := fn(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
