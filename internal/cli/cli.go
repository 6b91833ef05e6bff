// Package cli is the pewcron command line.
//
//	pewcron [--config path]
//	  run        one invocation over all tasks (the entry point for OS cron)
//	  loop       built-in trigger: run on a cron spec until SIGINT/SIGTERM
//	  settings   print the settings snapshot (-o json|yaml)
//	  validate   parse config and build every task without dispatching
//	  history    print recent launches for a task (--task id, --limit n)
//
// Configuration errors exit 1. Task failures never change the exit code.
package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pewcron/internal/app"
	"pewcron/internal/config"
	"pewcron/internal/storage"
)

var version = "dev"

type options struct {
	configPath string
	appOpts    []app.Option
}

// BuildCLI returns the root command. Extra app options are applied to every
// subcommand that loads the config.
func BuildCLI(extra ...app.Option) *cobra.Command {
	o := &options{appOpts: extra}
	root := &cobra.Command{
		Use:           "pewcron",
		Short:         "Launch tasks inside calendar windows with overlap and retry control",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", config.DefaultPath, "config file path (.yaml, .yml or .json)")

	root.AddCommand(
		buildRunCommand(o),
		buildLoopCommand(o),
		buildSettingsCommand(o),
		buildValidateCommand(o),
		buildHistoryCommand(o),
	)
	return root
}

func (o *options) open(cmd *cobra.Command) (*app.App, error) {
	opts := append([]app.Option{app.WithStdout(cmd.OutOrStdout())}, o.appOpts...)
	return app.New(o.configPath, opts...)
}

func buildRunCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Dispatch every task once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.RunOnce(cmd.Context())
			if report.Errors > 0 {
				return fmt.Errorf("%d task(s) could not be started", report.Errors)
			}
			return nil
		},
	}
}

func buildLoopCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "loop",
		Short: "Dispatch on the configured trigger until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Loop(cmd.Context())
		},
	}
}

func buildSettingsCommand(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Print the settings of every task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return config.Encode(cmd.OutOrStdout(), a.Settings(), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func buildValidateCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse the config and build every task without dispatching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d task(s)\n", len(a.Settings()))
			return nil
		},
	}
}

func buildHistoryCommand(o *options) *cobra.Command {
	var (
		taskID int
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent launches of a task, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be >= 1")
			}
			a, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			launches, err := a.History().Launches(cmd.Context(), taskID, limit)
			if err != nil {
				return err
			}
			if output != "table" {
				if launches == nil {
					launches = []storage.Launch{}
				}
				return config.Encode(cmd.OutOrStdout(), launches, output)
			}
			printLaunches(cmd, launches)
			return nil
		},
	}
	cmd.Flags().IntVar(&taskID, "task", 0, "task id (registration index)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum launches to print")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func printLaunches(cmd *cobra.Command, launches []storage.Launch) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tEND\tWORKING\tERRORS\tLAST ERROR")
	for _, l := range launches {
		end := "-"
		if l.EndTime != nil {
			end = l.EndTime.Format(time.DateTime)
		}
		errText, _, _ := strings.Cut(strings.TrimSpace(l.ErrorText), "\n")
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%d\t%s\n",
			l.ID, l.StartTime.Format(time.DateTime), end, l.IsWorking, l.ErrorCount, errText)
	}
	_ = w.Flush()
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := BuildCLI()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "fatal:", err)
		return 1
	}
	return 0
}
