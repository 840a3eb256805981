package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/envconfig"
	"github.com/ollama/minbpe/server"
	"github.com/ollama/minbpe/tokenizer"
)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Serve a tokenizer over HTTP",
		Args:    cobra.NoArgs,
		RunE:    serveHandler,
	}

	cmd.Flags().String("config", "", "Tokenizer config file, may be loaded later with POST /api/load")
	appendEnvDocs(cmd, []string{"MINBPE_HOST", "MINBPE_ENCODE_CACHE", "MINBPE_DEBUG", "MINBPE_TRACE"})
	return cmd
}

func serveHandler(cmd *cobra.Command, _ []string) error {
	var state *tokenizer.State
	if config, _ := cmd.Flags().GetString("config"); config != "" {
		var err error
		if state, err = loadState(config); err != nil {
			return err
		}
	}

	hp, err := envconfig.Host()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", hp.String())
	if err != nil {
		return err
	}

	srv, err := server.NewServer(state, envconfig.EncodeCache)
	if err != nil {
		return err
	}

	return server.Serve(cmd.Context(), ln, srv)
}
