package cli

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowstack/internal/api"
	"github.com/shaiso/Flowstack/internal/app"
	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/scheduler"
	"github.com/shaiso/Flowstack/internal/service"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

// ErrExecutionFailed — разовый запуск завершился со статусом FAILED.
var ErrExecutionFailed = errors.New("execution failed")

// localService создаёт сервис без хранилища для локальных команд.
var localService = func() *service.FlowService {
	return app.NewLocalService(telemetry.Discard())
}

// NewRunCmd создаёт команду разового запуска определения из файла.
// По умолчанию определение выполняется в процессе CLI; с --remote
// запрос уходит на сервер.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var timeout time.Duration
	var remote bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a flow definition once without saving it",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := LoadFlowFile(file)
			if err != nil {
				return err
			}

			var res *service.RunResult
			if remote {
				res, err = clientFn().RunOnce(api.RunOnceRequest{
					Name:       req.Name,
					Nodes:      req.Nodes,
					TimeoutSec: int(timeout / time.Second),
				})
			} else {
				res, err = localService().RunOnce(cmd.Context(), req.Definition(), timeout)
			}
			if err != nil {
				return err
			}

			printRunResult(outputFn(), res)
			if res.Status == domain.ExecStatusFailed {
				return fmt.Errorf("%w: %s", ErrExecutionFailed, res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Flow definition file, - for stdin (required)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Execution timeout (0 = no limit)")
	cmd.Flags().BoolVar(&remote, "remote", false, "Run on the API server instead of locally")
	cmd.MarkFlagRequired("file")

	return cmd
}

// validation — результат команды validate для JSON-вывода.
type validation struct {
	Valid     bool                 `json:"valid"`
	Nodes     []service.NodeSchema `json:"nodes"`
	NextFires []time.Time          `json:"next_fires,omitempty"`
}

// NewValidateCmd создаёт команду проверки определения из файла:
// cron-выражение, структура DAG и входные параметры.
func NewValidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var remote bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a flow definition file",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := LoadFlowFile(file)
			if err != nil {
				return err
			}

			result := validation{Valid: true}
			if req.CronExpr != "" {
				result.NextFires, err = scheduler.NextFires(req.CronExpr, time.Now(), 3)
				if err != nil {
					return err
				}
			}

			if remote {
				client := clientFn()
				if err := client.ValidateNodes(req.Nodes); err != nil {
					return err
				}
				if err := client.ValidateParams(req.Nodes); err != nil {
					return err
				}
				result.Nodes, err = client.FieldSchemas(req.Nodes)
			} else {
				svc := localService()
				def := req.Definition()
				if err := svc.ValidateNodes(def); err != nil {
					return err
				}
				if err := svc.ValidateParams(def); err != nil {
					return err
				}
				result.Nodes, err = svc.FieldSchemas(def)
			}
			if err != nil {
				return err
			}

			out := outputFn()
			if out.IsJSON() {
				out.JSON(result)
				return nil
			}

			out.Success(fmt.Sprintf("Flow %q is valid", req.Name))
			out.Table([]string{"NODE_ID", "NODE", "PARAM", "SOURCE", "TYPE"}, schemaRows(result.Nodes))
			for _, t := range result.NextFires {
				out.Line("next fire: %s", formatTime(t))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Flow definition file, - for stdin (required)")
	cmd.Flags().BoolVar(&remote, "remote", false, "Validate on the API server instead of locally")
	cmd.MarkFlagRequired("file")

	return cmd
}

func printRunResult(out *Output, res *service.RunResult) {
	if out.IsJSON() {
		out.JSON(res)
		return
	}

	out.Line("execution: %s", res.ExecutionID)
	out.Line("status:    %s", res.Status)
	if res.Error != "" {
		out.Line("error:     %s", res.Error)
	}
	out.Line("")

	keys := make([]string, 0, len(res.Context))
	for k := range res.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, fmt.Sprint(res.Context[k])}
	}
	out.Table([]string{"FIELD", "VALUE"}, rows)
}

func schemaRows(schemas []service.NodeSchema) [][]string {
	var rows [][]string
	for _, s := range schemas {
		params := make([]string, 0, len(s.Params))
		for key := range s.Params {
			params = append(params, key)
		}
		sort.Strings(params)

		for _, key := range params {
			p := s.Params[key]
			rows = append(rows, []string{s.NodeID, s.NodeName, key, string(p.Source), p.Type})
		}
	}
	return rows
}
