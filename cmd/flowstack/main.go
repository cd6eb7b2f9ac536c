// Flowstack — оркестратор flow: DAG из node, запускаемых по cron.
//
// Использование:
//
//	flowstack [--api-url URL] [--json] [--config FILE] <command> [flags]
//
// Команды:
//
//	serve       Запуск сервера
//	flow        Управление flows
//	schedule    Управление расписаниями
//	execution   История выполнений
//	validate    Проверка определения из файла
//	run         Разовый запуск определения из файла
//	nodes       Каталог node
//	fields      Реестр полей
//	events      События выполнения из RabbitMQ
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowstack/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "flowstack",
		Short:         "Flowstack — scheduled DAG workflow engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FLOWSTACK_CONFIG"), "Server config file (YAML)")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewServeCmd(&configPath),
		cli.NewFlowCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
		cli.NewValidateCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewNodesCmd(clientFn, outputFn),
		cli.NewFieldsCmd(clientFn, outputFn),
		cli.NewEventsCmd(outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
