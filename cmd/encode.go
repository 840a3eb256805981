package cmd

import (
	"log/slog"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/api"
	"github.com/ollama/minbpe/tokenizer"
)

func NewEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode text",
		Args:  cobra.NoArgs,
		RunE:  withResult("encode", encodeHandler),
	}

	cmd.Flags().String("config", "", "Tokenizer config file")
	cmd.Flags().String("text", "", "Text to encode or file path")
	cmd.Flags().String("output", "", "Output tokens file")
	cmd.Flags().String("allowed-special", tokenizer.AllowAll.String(), "Special token handling (all, none, none_raise)")
	for _, name := range []string{"config", "text", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func encodeHandler(cmd *cobra.Command, _ []string) (*api.Result, error) {
	flags := cmd.Flags()
	config, _ := flags.GetString("config")
	textArg, _ := flags.GetString("text")
	output, _ := flags.GetString("output")
	allowedSpecial, _ := flags.GetString("allowed-special")

	allowed, err := tokenizer.ParseAllowedSpecial(allowedSpecial)
	if err != nil {
		return nil, err
	}

	state, err := loadState(config)
	if err != nil {
		return nil, err
	}

	text, err := readText(textArg)
	if err != nil {
		return nil, err
	}

	e, err := tokenizer.NewEncoder(state)
	if err != nil {
		return nil, err
	}

	tokens, err := e.EncodeSpecial(text, allowed)
	if err != nil {
		return nil, err
	}

	if err := writeJSON(output, tokens); err != nil {
		return nil, err
	}

	slog.Info("encoded text", "characters", utf8.RuneCountInString(text), "tokens", len(tokens))
	return &api.Result{
		Status:      api.StatusSuccess,
		InputLength: utf8.RuneCountInString(text),
		TokenCount:  len(tokens),
		Tokens:      tokens,
		OutputFile:  output,
	}, nil
}
