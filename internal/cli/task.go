package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления задачами перевода.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage translation tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskSubmitCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskCancelCmd(clientFn, outputFn),
		newTaskRestartCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var username string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(ListTasksOpts{
				Status:   status,
				Username: username,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "TITLE", "STATUS", "USER", "CREATED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.ID, t.Title, t.Status, t.Username, t.CreatedAt}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (Pending, Running, Completed, Failed, Cancelled)")
	cmd.Flags().StringVar(&username, "username", "", "Filter by username")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var username string
	var args []string

	cmd := &cobra.Command{
		Use:   "submit TITLE",
		Short: "Submit a new translation task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateTaskRequest{
				Title:    cmdArgs[0],
				Username: username,
			}

			if len(args) > 0 {
				req.Args = make(map[string]any)
				for _, kv := range args {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid arg format %q, expected KEY=VALUE", kv)
					}
					req.Args[parts[0]] = parts[1]
				}
			}

			task, err := client.SubmitTask(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task submitted: %s", task.ID))
			out.Print(
				[]string{"ID", "TITLE", "STATUS", "CREATED"},
				[][]string{{task.ID, task.Title, task.Status, task.CreatedAt}},
				task,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Submitting user")
	cmd.Flags().StringSliceVar(&args, "arg", nil, "Task argument as KEY=VALUE (repeatable)")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details with stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "TITLE", "STATUS", "MESSAGE", "CREATED"},
				[][]string{{task.ID, task.Title, task.Status, task.Message, task.CreatedAt}},
				task,
			)

			if len(task.Stages) > 0 {
				headers := []string{"#", "STAGE", "STATUS", "MESSAGE"}
				rows := make([][]string, len(task.Stages))
				for i, s := range task.Stages {
					rows[i] = []string{strconv.Itoa(s.Number), s.Name, s.Status, s.Message}
				}
				out.Print(headers, rows, nil)
			}
			return nil
		},
	}
}

func newTaskCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Request task cancellation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.CancelTask(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Cancel requested for task %s", task.ID))
			out.Print(
				[]string{"ID", "TITLE", "STATUS"},
				[][]string{{task.ID, task.Title, task.Status}},
				task,
			)
			return nil
		},
	}
}

func newTaskRestartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "restart ID",
		Short: "Restart a finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.RestartTask(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task restarted: %s", task.ID))
			out.Print(
				[]string{"ID", "TITLE", "STATUS"},
				[][]string{{task.ID, task.Title, task.Status}},
				task,
			)
			return nil
		},
	}
}
