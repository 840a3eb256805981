package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/api"
	"github.com/ollama/minbpe/codec"
)

func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tokenizer configuration",
		Long:  "Re-export a config, converting between formats by file extension.",
		Args:  cobra.NoArgs,
		RunE:  withResult("export", exportHandler),
	}

	cmd.Flags().String("config", "", "Tokenizer config file")
	cmd.Flags().String("output", "", "Output config file")
	cmd.Flags().Bool("vocab", false, "Also export the vocabulary")
	for _, name := range []string{"config", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

// vocabFile names the vocabulary listing written next to a config.
func vocabFile(output string) string {
	return strings.TrimSuffix(output, ".json") + "_vocab.json"
}

func exportHandler(cmd *cobra.Command, _ []string) (*api.Result, error) {
	flags := cmd.Flags()
	config, _ := flags.GetString("config")
	output, _ := flags.GetString("output")
	withVocab, _ := flags.GetBool("vocab")

	state, err := loadState(config)
	if err != nil {
		return nil, err
	}

	r := api.Result{
		Status:        api.StatusSuccess,
		TokenizerType: string(state.Variant()),
		VocabSize:     state.VocabSize(),
		OutputFile:    output,
	}

	if withVocab {
		vocab := state.RenderVocabulary()
		for tok := range state.SpecialTokens().All() {
			delete(vocab, tok.ID)
		}

		r.VocabFile = vocabFile(output)
		if err := writeJSON(r.VocabFile, vocab); err != nil {
			return nil, err
		}
	}

	if err := codec.WriteFile(output, codec.Export(state)); err != nil {
		return nil, err
	}

	slog.Info("configuration exported", "output", output)
	return &r, nil
}
