package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/api"
)

const selfTestText = "Hello, world! This is a test."

func NewLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load and validate tokenizer configuration",
		Args:  cobra.NoArgs,
		RunE:  withResult("load", loadHandler),
	}

	cmd.Flags().String("config", "", "Tokenizer config file")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func loadHandler(cmd *cobra.Command, _ []string) (*api.Result, error) {
	config, _ := cmd.Flags().GetString("config")

	state, err := loadState(config)
	if err != nil {
		return nil, err
	}

	tokens, err := state.Encode(selfTestText)
	if err != nil {
		return nil, err
	}

	decoded, err := state.Decode(tokens)
	if err != nil {
		return nil, err
	}

	roundTrip := decoded == selfTestText
	return &api.Result{
		Status:        api.StatusSuccess,
		ConfigFile:    config,
		TokenizerType: string(state.Variant()),
		VocabSize:     state.VocabSize(),
		RoundTripTest: &roundTrip,
		TestTokens:    len(tokens),
	}, nil
}
