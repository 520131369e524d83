package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPoolCmd создаёт группу команд для пулов соединений.
func NewPoolCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect connection pools",
	}

	cmd.AddCommand(newPoolStatusCmd(clientFn, outputFn))

	return cmd
}

func newPoolStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status [CLASS]",
		Short: "Show pool status (all pools or one class)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var pools []PoolResponse
			if len(args) == 1 {
				pool, err := client.GetPool(args[0])
				if err != nil {
					return err
				}
				pools = []PoolResponse{*pool}
			} else {
				var err error
				pools, err = client.ListPools()
				if err != nil {
					return err
				}
			}

			headers := []string{"POOL", "BASELINE", "OVERFLOW", "OPEN", "IN", "OUT", "UTIL"}
			rows := make([][]string, len(pools))
			for i, p := range pools {
				rows[i] = []string{
					p.Name,
					strconv.Itoa(p.Baseline),
					strconv.Itoa(p.Overflow),
					strconv.Itoa(p.Open),
					strconv.Itoa(p.CheckedIn),
					strconv.Itoa(p.CheckedOut),
					fmt.Sprintf("%.0f%%", p.Utilization*100),
				}
			}

			out.Print(headers, rows, pools)
			return nil
		},
	}
}

// NewHealthCmd создаёт команду health check.
func NewHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			health, err := client.Health()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"STATUS", "DATABASE", "ACTIVE_TASKS"},
				[][]string{{health.Status, health.Database, strconv.Itoa(health.ActiveTasks)}},
				health,
			)

			if health.Status != "ok" {
				return fmt.Errorf("service degraded")
			}
			return nil
		},
	}
}
