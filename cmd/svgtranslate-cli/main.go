// svgtranslate — инструмент командной строки сервиса перевода SVG.
//
// Использование:
//
//	svgtranslate [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task    Управление задачами перевода
//	pool    Статус пулов соединений
//	health  Проверка состояния сервиса
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mdwiki-TD/svg-translate-web/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "svgtranslate",
		Short:         "svgtranslate CLI — SVG translation task tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewPoolCmd(clientFn, outputFn),
		cli.NewHealthCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
