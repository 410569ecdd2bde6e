package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/specialistvlad/studygrid/internal/app"
	"github.com/specialistvlad/studygrid/internal/registry"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	CodeFailure = 1
	CodeUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error {
	return &ExitError{Code: CodeUsage, Message: err.Error(), Err: err}
}

func failure(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: CodeFailure, Message: err.Error(), Err: err}
}

type globalFlags struct {
	logLevel  string
	logFormat string
}

// NewRootCommand builds the studygrid command tree. Output of every command
// goes to out; modules replace the built-in discipline set when given.
func NewRootCommand(out io.Writer, modules ...registry.Module) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "studygrid",
		Short:         "Configure and execute multidisciplinary studies",
		Long:          "studygrid loads HCL study definitions, configures their discipline tree and executes it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "Log output format: 'text' or 'json'.")

	newApp := func(cfg app.Config) (*app.App, *app.Config, error) {
		cfg.LogLevel = g.logLevel
		cfg.LogFormat = g.logFormat
		valid, err := app.NewConfig(cfg)
		if err != nil {
			return nil, nil, usageError(err)
		}
		slog.Debug("CLI configuration validated.", "config", valid)
		return app.NewApp(out, valid, modules...), valid, nil
	}

	root.AddCommand(
		newRunCommand(newApp),
		newTreeCommand(newApp),
		newModulesCommand(newApp),
		newHistoryCommand(newApp),
		newWatchCommand(newApp),
	)
	return root
}

type appFactory func(app.Config) (*app.App, *app.Config, error)

// studyArg requires exactly one STUDY_PATH argument.
func studyArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return usageError(err)
	}
	return nil
}

func newRunCommand(newApp appFactory) *cobra.Command {
	var cfg app.Config
	cmd := &cobra.Command{
		Use:   "run STUDY_PATH",
		Short: "Configure and execute a study",
		Args:  studyArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.StudyPath = args[0]
			a, valid, err := newApp(cfg)
			if err != nil {
				return err
			}
			_, err = a.Run(cmd.Context(), valid)
			return failure(err)
		},
	}
	cmd.Flags().IntVar(&cfg.MaxPasses, "max-passes", 0, "Override the configuration pass ceiling.")
	cmd.Flags().StringVar(&cfg.DBPath, "db", "", "SQLite file recording the run snapshot.")
	cmd.Flags().StringVar(&cfg.OutputPath, "output", "", "Write the anonymized study values to this YAML file.")
	cmd.Flags().StringVar(&cfg.FromRun, "from-run", "", "Reload the inputs of a stored run ID, or 'latest'.")
	cmd.Flags().BoolVar(&cfg.DryRun, "dry-run", false, "Configure only and print the tree.")
	return cmd
}

func newTreeCommand(newApp appFactory) *cobra.Command {
	var cfg app.Config
	cmd := &cobra.Command{
		Use:   "tree STUDY_PATH",
		Short: "Configure a study and print its discipline tree",
		Args:  studyArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.StudyPath = args[0]
			a, valid, err := newApp(cfg)
			if err != nil {
				return err
			}
			return failure(a.Tree(cmd.Context(), valid))
		},
	}
	cmd.Flags().IntVar(&cfg.MaxPasses, "max-passes", 0, "Override the configuration pass ceiling.")
	return cmd
}

func newModulesCommand(newApp appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the registered discipline modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := newApp(app.Config{})
			if err != nil {
				return err
			}
			a.Modules()
			return nil
		},
	}
}

func newHistoryCommand(newApp appFactory) *cobra.Command {
	var cfg app.Config
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the runs stored in a snapshot database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, valid, err := newApp(cfg)
			if err != nil {
				return err
			}
			_, err = a.History(cmd.Context(), valid)
			return failure(err)
		},
	}
	cmd.Flags().StringVar(&cfg.DBPath, "db", "", "SQLite file holding the run snapshots.")
	cmd.Flags().StringVar(&cfg.Study, "study", "", "Only list runs of this study.")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newWatchCommand(newApp appFactory) *cobra.Command {
	var cfg app.Config
	cmd := &cobra.Command{
		Use:   "watch STUDY_PATH",
		Short: "Run a study again every time its files change",
		Args:  studyArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.StudyPath = args[0]
			a, valid, err := newApp(cfg)
			if err != nil {
				return err
			}
			return failure(a.Watch(cmd.Context(), valid))
		},
	}
	cmd.Flags().IntVar(&cfg.MaxPasses, "max-passes", 0, "Override the configuration pass ceiling.")
	cmd.Flags().StringVar(&cfg.DBPath, "db", "", "SQLite file recording every run snapshot.")
	cmd.Flags().DurationVar(&cfg.Debounce, "debounce", 0, "Quiet period before a change triggers a run.")
	return cmd
}

// Execute runs the command tree on args. Errors that cobra raises itself,
// like unknown commands or a missing required flag, become usage errors.
func Execute(ctx context.Context, out io.Writer, args []string, modules ...registry.Module) error {
	root := NewRootCommand(out, modules...)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return usageError(err)
}
