package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/api"
)

func NewHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Health check",
		Long:  "Report the tokenizers this build supports, or with --remote the state of a running server.",
		Args:  cobra.NoArgs,
		RunE:  withResult("health", healthHandler),
	}

	cmd.Flags().Bool("remote", false, "Check the server at MINBPE_HOST")
	appendEnvDocs(cmd, []string{"MINBPE_HOST"})
	return cmd
}

func healthHandler(cmd *cobra.Command, _ []string) (*api.Result, error) {
	if remote, _ := cmd.Flags().GetBool("remote"); !remote {
		return &api.Result{
			Status:              api.StatusHealthy,
			AvailableTokenizers: availableTokenizers(),
		}, nil
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}

	resp, err := client.Health(cmd.Context())
	if err != nil {
		return nil, err
	}

	return &api.Result{
		Status:              resp.Status,
		TokenizerType:       resp.Type,
		VocabSize:           resp.VocabSize,
		AvailableTokenizers: resp.AvailableTokenizers,
	}, nil
}
