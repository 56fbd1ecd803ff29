// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/desertthunder/drivecopy/internal/formatter"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
		Sources: cli.EnvVars("DRIVECOPY_CONFIG"),
	}
}

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Base URL of a running drivecopy server (defaults to [server] in config)",
		Sources: cli.EnvVars("DRIVECOPY_SERVER"),
	}
}

func formatFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, csv, markdown, txt",
		Value:   value,
	}
}

// setupCommand initializes config and database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the history database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.SetupDatabase,
	}
}

// authCommand handles Google Drive authorization
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Google Drive authorization",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize drivecopy with Google Drive using OAuth2",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the cached Drive token",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

// serveCommand runs the HTTP job API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the copy job server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on (overrides config)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record finished jobs in the history database",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Log every request",
			},
		},
		Action: r.Serve,
	}
}

// copyCommand submits a batch and follows it
func copyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "Submit Drive links or ids for copying and follow the job",
		ArgsUsage: "[link-or-id ...]",
		Flags: []cli.Flag{
			configFlag(),
			serverFlag(),
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"i"},
				Usage:   "Read references from a file (one per line or comma separated, - for stdin)",
			},
			&cli.StringFlag{
				Name:  "folder-id",
				Usage: "Copy into this existing Drive folder",
			},
			&cli.StringFlag{
				Name:  "folder-name",
				Usage: "Name of the destination folder to create",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Items copied in parallel, clamped to 1-10 (server default when unset)",
			},
			&cli.BoolFlag{
				Name:    "detach",
				Aliases: []string{"d"},
				Usage:   "Print the job id and return without waiting",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the final job as JSON",
			},
		},
		Action: r.Copy,
	}
}

// jobsCommand inspects jobs on a running server
func jobsCommand(r *Runner) *cli.Command {
	idArg := []cli.Argument{&cli.StringArg{Name: "id"}}

	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect and manage jobs on a running server",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List jobs, newest first",
				Flags:  []cli.Flag{configFlag(), serverFlag(), &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}},
				Action: r.JobsList,
			},
			{
				Name:      "get",
				Usage:     "Show one job",
				Arguments: idArg,
				Flags: []cli.Flag{
					configFlag(),
					serverFlag(),
					formatFlag(formatter.FormatText),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the report to a file instead of stdout",
					},
				},
				Action: r.JobsGet,
			},
			{
				Name:      "delete",
				Usage:     "Remove a job record from the server",
				Arguments: idArg,
				Flags:     []cli.Flag{configFlag(), serverFlag()},
				Action:    r.JobsDelete,
			},
			{
				Name:      "cancel",
				Usage:     "Stop a processing job",
				Arguments: idArg,
				Flags:     []cli.Flag{configFlag(), serverFlag()},
				Action:    r.JobsCancel,
			},
		},
	}
}

// watchCommand opens the TUI
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Aliases:   []string{"ui"},
		Usage:     "Follow jobs in an interactive terminal UI",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     []cli.Flag{configFlag(), serverFlag()},
		Action:    r.TUI,
	}
}

// historyCommand reads finished jobs from the history database
func historyCommand(r *Runner) *cli.Command {
	idArg := []cli.Argument{&cli.StringArg{Name: "id"}}

	return &cli.Command{
		Name:  "history",
		Usage: "Finished jobs recorded by the server",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded jobs",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "status", Usage: "Only jobs with this status (complete, error)"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of jobs", Value: 20},
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.HistoryList,
			},
			{
				Name:      "show",
				Usage:     "Show a recorded job with its items",
				Arguments: idArg,
				Flags: []cli.Flag{
					configFlag(),
					formatFlag(formatter.FormatText),
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the report to a file"},
				},
				Action: r.HistoryShow,
			},
			{
				Name:      "delete",
				Usage:     "Hide a recorded job",
				Arguments: idArg,
				Flags:     []cli.Flag{configFlag()},
				Action:    r.HistoryDelete,
			},
			{
				Name:  "prune",
				Usage: "Permanently remove recorded jobs older than a duration",
				Flags: []cli.Flag{
					configFlag(),
					&cli.DurationFlag{Name: "older-than", Usage: "Age cutoff (e.g. 720h)", Value: 30 * 24 * time.Hour},
				},
				Action: r.HistoryPrune,
			},
		},
	}
}

// parseCommand checks references offline
func parseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Show how links or ids are recognized without copying anything",
		ArgsUsage: "[link-or-id ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"i"}, Usage: "Read references from a file (- for stdin)"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Parse,
	}
}
