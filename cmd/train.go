package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/api"
	"github.com/ollama/minbpe/codec"
	"github.com/ollama/minbpe/envconfig"
	"github.com/ollama/minbpe/progress"
	"github.com/ollama/minbpe/tokenizer"
)

func NewTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a tokenizer",
		Long:  "Learn merges from text and write the tokenizer config. gpt4 is pretrained and is written as is.",
		Args:  cobra.NoArgs,
		RunE:  withResult("train", trainHandler),
	}

	cmd.Flags().String("text", "", "Training text or file path")
	cmd.Flags().Int("vocab-size", 0, "Vocabulary size")
	cmd.Flags().String("type", "", "Tokenizer type (basic, regex, gpt4)")
	cmd.Flags().String("output", "", "Output config file (.json, .cbor, optionally .zst or .gz)")
	cmd.Flags().Int("workers", envconfig.TrainWorkers, "Goroutines counting pairs")
	cmd.Flags().String("tie-break", tokenizer.TieBreakLowestPair.String(), "Tie break between equally frequent pairs (lowest-pair, first-occurrence)")
	for _, name := range []string{"text", "vocab-size", "type", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}

	appendEnvDocs(cmd, []string{"MINBPE_TRAIN_WORKERS", "MINBPE_NOPROGRESS", "MINBPE_DEBUG"})
	return cmd
}

func trainHandler(cmd *cobra.Command, _ []string) (*api.Result, error) {
	flags := cmd.Flags()
	textArg, _ := flags.GetString("text")
	vocabSize, _ := flags.GetInt("vocab-size")
	typ, _ := flags.GetString("type")
	output, _ := flags.GetString("output")
	workers, _ := flags.GetInt("workers")
	tieBreak, _ := flags.GetString("tie-break")

	variant, err := tokenizer.ParseVariant(typ)
	if err != nil {
		return nil, err
	}

	var state *tokenizer.State
	if variant.Trainable() {
		if state, err = train(cmd, variant, textArg, vocabSize, workers, tieBreak); err != nil {
			return nil, err
		}
	} else {
		slog.Info("tokenizer is pretrained, skipping training", "type", variant)
		err = spin("loading pretrained ranks", func() error {
			state, err = tokenizer.Pretrained(variant)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if err := codec.WriteFile(output, codec.Export(state)); err != nil {
		return nil, err
	}

	slog.Info("tokenizer configuration saved", "output", output)
	return &api.Result{
		Status:        api.StatusSuccess,
		TokenizerType: string(variant),
		VocabSize:     state.VocabSize(),
		Merges:        state.Merges().Len(),
		OutputFile:    output,
	}, nil
}

func train(cmd *cobra.Command, variant tokenizer.Variant, textArg string, vocabSize, workers int, tieBreak string) (*tokenizer.State, error) {
	text, err := readText(textArg)
	if err != nil {
		return nil, err
	}

	tb, err := tokenizer.ParseTieBreak(tieBreak)
	if err != nil {
		return nil, err
	}

	opts := tokenizer.TrainOptions{
		Variant:  variant,
		Workers:  workers,
		TieBreak: tb,
	}

	if showProgress() && vocabSize > tokenizer.NumBytes {
		p := progress.NewProgress(os.Stderr)
		defer p.Stop()

		bar := progress.NewBar("training", "merges", int64(vocabSize-tokenizer.NumBytes), 0)
		p.Add(bar)

		opts.OnMerge = func(e tokenizer.MergeEvent) {
			bar.Set(int64(e.Rank + 1))
			bar.SetDetail(tokenizer.RenderToken(e.Bytes))
		}
	}

	slog.Info("training tokenizer", "type", variant, "vocab_size", vocabSize, "workers", workers)
	return tokenizer.Train(cmd.Context(), text, vocabSize, opts)
}
