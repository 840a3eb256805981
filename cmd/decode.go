package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/api"
	"github.com/ollama/minbpe/tokenizer"
)

func NewDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode tokens",
		Args:  cobra.NoArgs,
		RunE:  withResult("decode", decodeHandler),
	}

	cmd.Flags().String("config", "", "Tokenizer config file")
	cmd.Flags().String("tokens", "", "Tokens as a JSON array or file path")
	cmd.Flags().String("output", "", "Output text file")
	for _, name := range []string{"config", "tokens", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func decodeHandler(cmd *cobra.Command, _ []string) (*api.Result, error) {
	flags := cmd.Flags()
	config, _ := flags.GetString("config")
	tokensArg, _ := flags.GetString("tokens")
	output, _ := flags.GetString("output")

	state, err := loadState(config)
	if err != nil {
		return nil, err
	}

	raw, err := readText(tokensArg)
	if err != nil {
		return nil, err
	}

	var tokens []int32
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil, fmt.Errorf("%w: tokens: %w", tokenizer.ErrMalformedInput, err)
	}

	text, err := state.Decode(tokens)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		return nil, err
	}

	slog.Info("decoded tokens", "tokens", len(tokens), "characters", utf8.RuneCountInString(text))
	return &api.Result{
		Status:       api.StatusSuccess,
		TokenCount:   len(tokens),
		OutputLength: utf8.RuneCountInString(text),
		Text:         text,
		OutputFile:   output,
	}, nil
}
