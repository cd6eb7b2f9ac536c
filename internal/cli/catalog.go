package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
)

// NewNodesCmd создаёт команду вывода каталога node.
func NewNodesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List available node implementations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var metas []node.Meta
			if remote {
				var err error
				if metas, err = clientFn().ListNodes(); err != nil {
					return err
				}
			} else {
				metas = localService().Nodes()
			}

			headers := []string{"NAME", "GROUP", "INPUTS", "OUTPUTS", "DESCRIPTION"}
			rows := make([][]string, len(metas))
			for i, m := range metas {
				rows[i] = []string{
					m.Name,
					m.Group,
					strings.Join(m.Inputs, ","),
					strings.Join(m.Outputs, ","),
					m.Description,
				}
			}

			outputFn().Print(headers, rows, metas)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Query the API server instead of the built-in catalogue")

	return cmd
}

// NewFieldsCmd создаёт команду вывода реестра полей.
func NewFieldsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List registered context fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			var defs []fields.Definition
			if remote {
				var err error
				if defs, err = clientFn().ListFields(); err != nil {
					return err
				}
			} else {
				defs = localService().Fields()
			}

			headers := []string{"KEY", "TYPE", "GROUP", "DESCRIPTION"}
			rows := make([][]string, len(defs))
			for i, d := range defs {
				rows[i] = []string{d.Key, d.TypeName(), d.Group, d.Description}
			}

			outputFn().Print(headers, rows, defs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Query the API server instead of the built-in registry")

	return cmd
}
