package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/moduletrack/internal/annotator"
	"github.com/JonMunkholm/moduletrack/internal/config"
	"github.com/JonMunkholm/moduletrack/internal/core"
	"github.com/JonMunkholm/moduletrack/internal/logging"
	"github.com/JonMunkholm/moduletrack/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// opener builds the service a command runs against. The returned func
// releases the store.
type opener func(ctx context.Context) (*core.Service, func(), error)

// openFromEnv wires the service the same way the server does.
func openFromEnv(ctx context.Context) (*core.Service, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	ann, err := annotator.New(ctx, cfg.Annotator)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("create annotator: %w", err)
	}
	return core.NewService(st, ann, cfg), func() { st.Close() }, nil
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(openFromEnv)
}

func newRootCmdWith(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "modulectl",
		Short:         "ModuleTrack module shipment tracking",
		Long:          "modulectl imports, lists and exports the module table from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newListCmd(open))
	cmd.AddCommand(newImportCmd(open))
	cmd.AddCommand(newImportColumnCmd(open))
	cmd.AddCommand(newExportCmd(open))
	cmd.AddCommand(newEvaluateCmd(open))
	cmd.AddCommand(newResetCmd(open))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "modulectl %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// withService opens the service for the duration of fn.
func withService(cmd *cobra.Command, open opener, fn func(svc *core.Service) error) error {
	svc, closeFn, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(svc)
}

func execute(cmd *cobra.Command) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
