package cli

import (
	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для просмотра истории выполнений.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Inspect execution history",
	}

	cmd.AddCommand(newExecutionShowCmd(clientFn, outputFn))

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show EXECUTION_ID",
		Short: "Show a flow execution with its node executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := clientFn().GetExecution(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			if out.IsJSON() {
				out.JSON(details)
				return nil
			}

			out.Line("execution: %s", details.ExecutionUUID)
			out.Line("flow:      %d", details.FlowID)
			out.Line("status:    %s", details.Status)
			out.Line("started:   %s", formatTime(details.StartedAt))
			out.Line("finished:  %s", formatTimePtr(details.FinishedAt))
			if details.Error != "" {
				out.Line("error:     %s", details.Error)
			}
			out.Line("")

			headers := []string{"NODE_ID", "NAME", "STATUS", "STARTED", "FINISHED", "LOG"}
			rows := make([][]string, len(details.Nodes))
			for i, n := range details.Nodes {
				rows[i] = []string{
					n.NodeID,
					n.NodeName,
					n.Status.String(),
					formatTime(n.StartedAt),
					formatTimePtr(n.FinishedAt),
					n.Log,
				}
			}
			out.Table(headers, rows)
			return nil
		},
	}
}
