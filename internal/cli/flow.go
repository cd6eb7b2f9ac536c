package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowstack/internal/api"
)

// NewFlowCmd создаёт группу команд для управления flows.
func NewFlowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage flows",
	}

	cmd.AddCommand(
		newFlowListCmd(clientFn, outputFn),
		newFlowCreateCmd(clientFn, outputFn),
		newFlowShowCmd(clientFn, outputFn),
		newFlowDeleteCmd(clientFn, outputFn),
		newFlowTriggerCmd(clientFn, outputFn),
		newFlowExecutionsCmd(clientFn, outputFn),
	)

	return cmd
}

func newFlowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all flows with their last execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flows, err := client.ListFlows()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "CRON", "ENABLED", "LAST_STATUS", "LAST_DURATION"}
			rows := make([][]string, len(flows))
			for i, f := range flows {
				rows[i] = []string{
					strconv.FormatInt(f.FlowID, 10),
					f.Name,
					f.CronExpr,
					strconv.FormatBool(f.Enabled),
					f.LastStatus.String(),
					fmt.Sprintf("%ds", f.LastDurationSec),
				}
			}

			out.Print(headers, rows, flows)
			return nil
		},
	}
}

func newFlowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var name string
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a flow from a YAML or JSON file and schedule it",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req, err := LoadFlowFile(file)
			if err != nil {
				return err
			}
			if name != "" {
				req.Name = name
			}
			if cronExpr != "" {
				req.CronExpr = cronExpr
			}

			flow, err := client.CreateFlow(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Flow created: %d", flow.ID))
			printFlow(out, flow)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Flow definition file, - for stdin (required)")
	cmd.Flags().StringVar(&name, "name", "", "Override flow name")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Override cron expression")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newFlowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show flow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFlowID(args[0])
			if err != nil {
				return err
			}

			flow, err := clientFn().GetFlow(id)
			if err != nil {
				return err
			}

			out := outputFn()
			printFlow(out, flow)
			if out.IsJSON() {
				return nil
			}

			out.Line("")
			headers := []string{"NODE_ID", "NAME", "PARAMS", "NEXT"}
			rows := make([][]string, len(flow.Definition.Nodes))
			for i, n := range flow.Definition.Nodes {
				rows[i] = []string{n.NodeID, n.Name, strconv.Itoa(len(n.InputParams)), fmt.Sprint(n.NextNodeIDs)}
			}
			out.Table(headers, rows)
			return nil
		},
	}
}

func newFlowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a flow and stop its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFlowID(args[0])
			if err != nil {
				return err
			}

			if err := clientFn().DeleteFlow(id); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Flow deleted: %d", id))
			return nil
		},
	}
}

func newFlowTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger ID",
		Short: "Run a flow now, outside its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFlowID(args[0])
			if err != nil {
				return err
			}

			resp, err := clientFn().TriggerFlow(id)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Execution started: %s", resp.ExecutionID))
			out.Print(
				[]string{"FLOW_ID", "EXECUTION_ID"},
				[][]string{{strconv.FormatInt(resp.FlowID, 10), resp.ExecutionID.String()}},
				resp,
			)
			return nil
		},
	}
}

func newFlowExecutionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "executions ID",
		Short: "List recent executions of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFlowID(args[0])
			if err != nil {
				return err
			}

			execs, err := clientFn().ListExecutions(id, limit)
			if err != nil {
				return err
			}

			headers := []string{"EXECUTION_ID", "STATUS", "STARTED", "FINISHED", "ERROR"}
			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = []string{
					e.ExecutionUUID.String(),
					e.Status.String(),
					formatTime(e.StartedAt),
					formatTimePtr(e.FinishedAt),
					e.Error,
				}
			}

			outputFn().Print(headers, rows, execs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func printFlow(out *Output, flow *api.FlowResponse) {
	out.Print(
		[]string{"ID", "NAME", "CRON", "ENABLED", "NODES", "CREATED"},
		[][]string{{
			strconv.FormatInt(flow.ID, 10),
			flow.Name,
			flow.CronExpr,
			strconv.FormatBool(flow.Enabled),
			strconv.Itoa(len(flow.Definition.Nodes)),
			formatTime(flow.CreatedAt),
		}},
		flow,
	)
}
