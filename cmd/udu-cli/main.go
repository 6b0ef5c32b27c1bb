// UDU CLI: инструмент оператора для ручной загрузки descriptor'ов
// и проверки очереди через front door.
//
// Использование:
//
//	udu [--server-url URL] [--json] <command> [flags]
//
// Команды:
//
//	submit  Загрузить job descriptor
//	ping    Опубликовать ping
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Ingest/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var serverURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "udu",
		Short:         "UDU CLI: user data upload operator tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", "http://localhost:8080", "Front door URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(serverURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewSubmitCmd(clientFn, outputFn),
		cli.NewPingCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
