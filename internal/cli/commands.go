package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSubmitCmd создаёт команду загрузки descriptor'а.
func NewSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file, successURL, failureURL string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Upload a job descriptor for processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if successURL == "" || failureURL == "" {
				return errors.New("--success-url and --failure-url are required")
			}

			client := clientFn()
			out := outputFn()

			res, err := client.Submit(file, successURL, failureURL)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Upload accepted: %s", res.FileName))
			return out.Record([]Field{
				{"status", res.Status},
				{"file", res.FileName},
				{"location", res.Location},
			}, res)
		},
	}

	cmd.Flags().StringVar(&file, "file", "config.json", "Path to the job descriptor")
	cmd.Flags().StringVar(&successURL, "success-url", "", "Callback for a successful upload (required)")
	cmd.Flags().StringVar(&failureURL, "failure-url", "", "Callback for a failed upload (required)")
	cmd.MarkFlagRequired("success-url")
	cmd.MarkFlagRequired("failure-url")

	return cmd
}

// NewPingCmd создаёт команду проверки очереди.
func NewPingCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Publish a ping task through the front door",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			reply, err := client.Ping()
			if err != nil {
				return err
			}

			return out.Table(
				[]string{"REPLY"},
				[][]string{{reply}},
				map[string]string{"reply": reply},
			)
		},
	}
}
