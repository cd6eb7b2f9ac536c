package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowstack/internal/scheduler"
)

// NewScheduleCmd создаёт группу команд для управления расписаниями.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage flow schedules",
	}

	cmd.AddCommand(
		newScheduleEnableCmd(clientFn, outputFn),
		newScheduleDisableCmd(clientFn, outputFn),
		newScheduleNextCmd(outputFn),
	)

	return cmd
}

func newScheduleEnableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "enable FLOW_ID",
		Short: "Enable the cron trigger of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFlowID(args[0])
			if err != nil {
				return err
			}

			flow, err := clientFn().EnableFlow(id)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Schedule enabled: %d", flow.ID))
			printFlow(out, flow)
			return nil
		},
	}
}

func newScheduleDisableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "disable FLOW_ID",
		Short: "Disable the cron trigger of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFlowID(args[0])
			if err != nil {
				return err
			}

			flow, err := clientFn().DisableFlow(id)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Schedule disabled: %d", flow.ID))
			printFlow(out, flow)
			return nil
		},
	}
}

func newScheduleNextCmd(outputFn func() *Output) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next CRON_EXPR",
		Short: "Show the next fire times of a cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			times, err := scheduler.NextFires(args[0], time.Now(), count)
			if err != nil {
				return err
			}

			rows := make([][]string, len(times))
			for i, t := range times {
				rows[i] = []string{strconv.Itoa(i + 1), formatTime(t)}
			}

			outputFn().Print([]string{"#", "FIRE_TIME"}, rows, times)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "Number of fire times")

	return cmd
}
