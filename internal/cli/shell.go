package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run reports interactively",
	Long: `Open one connection and run reports on demand. Commands:

  help             show the available commands
  RoleHierarchy    print the role hierarchy
  DatabaseSummary  print the database summary
  quit             leave the shell

Commands are case-insensitive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, closeFn, err := openService(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		return runShell(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), []shellCommand{
			{
				name: "RoleHierarchy",
				help: "Prints the role hierarchy",
				run: func(ctx context.Context, w io.Writer) error {
					return runRoleHierarchy(ctx, svc, w)
				},
			},
			{
				name: "DatabaseSummary",
				help: "Prints every database with its schemas and objects",
				run: func(ctx context.Context, w io.Writer) error {
					return runDatabaseSummary(ctx, svc, w)
				},
			},
		})
	},
}

func init() {
	shellCmd.Flags().StringSliceVar(&flags.RootRoles, "root", nil, "root role of the printed forest (repeatable)")
	shellCmd.Flags().IntVar(&flags.ConcurrentTasks, "concurrency", 0, "databases summarized at once (default 4)")
	shellCmd.Flags().IntVar(&flags.TimeoutMinutes, "timeout", 0, "minutes to wait for all databases (default 10)")
}

type shellCommand struct {
	name string
	help string
	run  func(ctx context.Context, w io.Writer) error
}

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	errorColor  = color.New(color.FgRed)
	titleColor  = color.New(color.Bold)
)

// runShell reads one command per line until quit, EOF or ctx ends. A failed
// report is printed and the loop continues.
func runShell(ctx context.Context, in io.Reader, out io.Writer, commands []shellCommand) error {
	byName := make(map[string]shellCommand, len(commands))
	for _, c := range commands {
		byName[strings.ToLower(c.name)] = c
	}

	_, _ = titleColor.Fprintln(out, "Welcome to snowreport!")
	printShellHelp(out, commands)

	scanner := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, _ = promptColor.Fprint(out, "\nsnowreport> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch key := strings.ToLower(line); key {
		case "":
			continue
		case "help":
			printShellHelp(out, commands)
		case "quit", "exit":
			_, _ = fmt.Fprintln(out, "Quitting snowreport")
			return nil
		default:
			c, ok := byName[key]
			if !ok {
				_, _ = errorColor.Fprintf(out, "The command %q was not recognized. Try again\n", line)
				printShellHelp(out, commands)
				continue
			}
			if err := c.run(ctx, out); err != nil {
				_, _ = errorColor.Fprintf(out, "%s failed: %v\n", c.name, err)
			}
		}
	}
}

func printShellHelp(out io.Writer, commands []shellCommand) {
	_, _ = fmt.Fprintln(out, "\nAvailable commands:")
	_, _ = fmt.Fprintln(out, "  help - Shows this message")
	for _, c := range commands {
		_, _ = fmt.Fprintf(out, "  %s - %s\n", c.name, c.help)
	}
	_, _ = fmt.Fprintln(out, "  quit - Quits snowreport")
}
