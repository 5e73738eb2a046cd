package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"docqa/internal/client"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docqa",
		Usage: "Upload documents to a docqa server and ask questions about them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "docqa server URL",
				Value:   client.DefaultServer,
				EnvVars: []string{"DOCQA_SERVER"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout for non-streaming requests (0 disables)",
				Value: 0,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Upload and index one or more files",
				ArgsUsage: "FILE...",
				Action:    uploadCommand,
			},
			{
				Name:      "ask",
				Usage:     "Ask a single question",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "stream",
						Usage: "Print the answer as it is generated",
					},
				},
			},
			{
				Name:   "chat",
				Usage:  "Interactive question loop; type exit to quit",
				Action: chatCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "history",
						Usage: "Write the conversation as Markdown to this file on exit",
					},
					&cli.BoolFlag{
						Name:  "no-stream",
						Usage: "Wait for complete answers instead of streaming",
					},
				},
			},
			{
				Name:  "docs",
				Usage: "Inspect and remove uploaded documents",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List uploaded documents",
						Action: docsListCommand,
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Value: 20, Usage: "Page size"},
							&cli.IntFlag{Name: "offset", Value: 0, Usage: "Rows to skip"},
							&cli.StringFlag{Name: "status", Usage: "Filter by status (pending, indexed, failed, replaced)"},
						},
					},
					{
						Name:      "get",
						Usage:     "Show one document",
						ArgsUsage: "ID",
						Action:    docsGetCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "download",
								Usage: "Save the uploaded file to this path; a directory keeps the uploaded name",
							},
						},
					},
					{
						Name:      "delete",
						Usage:     "Delete a document and its indexed chunks",
						ArgsUsage: "ID",
						Action:    docsDeleteCommand,
					},
				},
			},
			{
				Name:   "health",
				Usage:  "Check that the server and its database respond",
				Action: healthCommand,
			},
		},
	}
}
