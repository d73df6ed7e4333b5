package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevir/agentq/internal/client"
	"github.com/sevir/agentq/internal/ui"
	"github.com/sevir/agentq/pkg/models"
)

const requestTimeout = 30 * time.Second

func clientCommands() []*cobra.Command {
	return []*cobra.Command{
		listCmd(),
		showCmd(),
		addCmd(),
		removeCmd(),
		cancelCmd(),
		retryCmd(),
		priorityCmd(),
		reorderCmd(),
		outputCmd(),
		statusCmd(),
		startCmd(),
		pauseCmd(),
		concurrencyCmd(),
		clearCmd(),
	}
}

// newClient resolves the server URL from --server, then the config file.
func newClient() (*client.Client, error) {
	if flagServer != "" {
		return client.New(flagServer), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.BaseURL()), nil
}

// withClient runs fn with a connected client and a bounded context.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return fn(ctx, c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func listCmd() *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks in queue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]models.TaskStatus, 0, len(statuses))
			for _, s := range statuses {
				st := models.TaskStatus(strings.ToLower(s))
				if !models.ValidStatus(st) {
					return fmt.Errorf("invalid status %q", s)
				}
				filter = append(filter, st)
			}
			return withClient(func(ctx context.Context, c *client.Client) error {
				tasks, err := c.List(ctx, filter...)
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(tasks)
				}
				ui.TaskTable(os.Stdout, tasks)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show tasks with these statuses")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				task, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(task)
				}
				ui.TaskDetail(os.Stdout, task)
				return nil
			})
		},
	}
}

func addCmd() *cobra.Command {
	var (
		name     string
		project  string
		priority string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "add [prompt]",
		Short: "Add a prompt to the queue",
		Long: `Add a prompt to the queue. The prompt is taken from the arguments, from
--file, or from standard input when the only argument is "-".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, file)
			if err != nil {
				return err
			}
			if _, err := models.ParsePriority(priority); err != nil {
				return err
			}
			if project == "" {
				project, _ = os.Getwd()
			} else if abs, err := filepath.Abs(project); err == nil {
				project = abs
			}

			return withClient(func(ctx context.Context, c *client.Client) error {
				task, err := c.Add(ctx, models.AddRequest{
					Name:        name,
					Prompt:      prompt,
					ProjectPath: project,
					Priority:    priority,
				})
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(task)
				}
				fmt.Printf("%s Added %s %s\n", ui.Green("✓"), ui.Bold(task.ID), ui.Dim(task.Name))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Task name (default: start of the prompt)")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project directory (default: current directory)")
	cmd.Flags().StringVar(&priority, "priority", "normal", "Priority: low, normal, high")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the prompt from a file")
	return cmd
}

func readPrompt(args []string, file string) (string, error) {
	var prompt string
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		prompt = string(data)
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = string(data)
	default:
		prompt = strings.Join(args, " ")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}
	return prompt, nil
}

// taskAction builds a command that runs one id-based call and reports it.
func taskAction(use, short, done string, call func(c *client.Client, ctx context.Context, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				if err := call(c, ctx, args[0]); err != nil {
					return err
				}
				if flagJSON {
					return printJSON(map[string]any{"success": true, "id": args[0]})
				}
				fmt.Printf("%s %s %s\n", ui.Green("✓"), done, ui.Bold(args[0]))
				return nil
			})
		},
	}
}

func removeCmd() *cobra.Command {
	cmd := taskAction("remove", "Remove a task, stopping it if running", "Removed", (*client.Client).Remove)
	cmd.Aliases = []string{"rm"}
	return cmd
}

func cancelCmd() *cobra.Command {
	return taskAction("cancel", "Cancel a queued or running task", "Cancelled", (*client.Client).Cancel)
}

func retryCmd() *cobra.Command {
	return taskAction("retry", "Requeue a failed or cancelled task", "Requeued", (*client.Client).Retry)
}

func priorityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "priority <id> <low|normal|high>",
		Short: "Change a task's priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParsePriority(args[1])
			if err != nil {
				return err
			}
			return withClient(func(ctx context.Context, c *client.Client) error {
				if err := c.SetPriority(ctx, args[0], string(p)); err != nil {
					return err
				}
				fmt.Printf("%s %s is now %s\n", ui.Green("✓"), ui.Bold(args[0]), ui.PriorityText(p, 0))
				return nil
			})
		},
	}
}

func reorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id> <index>",
		Short: "Move a queued task to a new position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			return withClient(func(ctx context.Context, c *client.Client) error {
				if err := c.Reorder(ctx, args[0], index); err != nil {
					return err
				}
				fmt.Printf("%s Moved %s\n", ui.Green("✓"), ui.Bold(args[0]))
				return nil
			})
		},
	}
}

func outputCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "output <id>",
		Short: "Print captured terminal output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				chunks, err := c.Output(ctx, args[0], tail)
				if err != nil {
					return err
				}
				if flagJSON {
					return printJSON(chunks)
				}
				for _, chunk := range chunks {
					fmt.Print(chunk)
				}
				fmt.Println()
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "t", 0, "Only print the newest N chunks")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				return printStatus(st)
			})
		},
	}
}

func printStatus(st *models.QueueStatus) error {
	if flagJSON {
		return printJSON(st)
	}
	ui.QueueSummary(os.Stdout, st)
	return nil
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start dispatching queued tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				st, err := c.Start(ctx)
				if err != nil {
					return err
				}
				return printStatus(st)
			})
		},
	}
}

func pauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Stop dispatching new tasks; running tasks continue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				st, err := c.Pause(ctx)
				if err != nil {
					return err
				}
				return printStatus(st)
			})
		},
	}
}

func concurrencyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "concurrency <n>",
		Short: "Set how many tasks may run at once (1-5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid number %q", args[0])
			}
			return withClient(func(ctx context.Context, c *client.Client) error {
				applied, err := c.SetConcurrency(ctx, n)
				if err != nil {
					return err
				}
				if applied != n {
					fmt.Printf("%s Max concurrent set to %d %s\n", ui.Green("✓"), applied, ui.Dim(fmt.Sprintf("(clamped from %d)", n)))
					return nil
				}
				fmt.Printf("%s Max concurrent set to %d\n", ui.Green("✓"), applied)
				return nil
			})
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				removed, err := c.ClearCompleted(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%s Removed %d completed task(s)\n", ui.Green("✓"), removed)
				return nil
			})
		},
	}
}
