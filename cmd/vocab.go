package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/format"
	"github.com/ollama/minbpe/tokenizer"
)

func NewVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "List a tokenizer's vocabulary",
		Args:  cobra.NoArgs,
		RunE:  vocabHandler,
	}

	cmd.Flags().String("config", "", "Tokenizer config file")
	cmd.Flags().Int("limit", 0, "Show at most this many entries, 0 shows all")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func vocabHandler(cmd *cobra.Command, _ []string) error {
	config, _ := cmd.Flags().GetString("config")
	limit, _ := cmd.Flags().GetInt("limit")

	state, err := loadState(config)
	if err != nil {
		return err
	}

	vocab := state.RenderVocabulary()
	ids := slices.Sorted(maps.Keys(vocab))
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	var data [][]string
	for _, id := range ids {
		kind := "byte"
		switch {
		case id >= int32(state.VocabSize()):
			kind = "special"
		case id >= tokenizer.NumBytes:
			kind = "merge"
		}

		data = append(data, []string{strconv.Itoa(int(id)), vocab[id], kind})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "TOKEN", "KIND"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(cmd.OutOrStdout(), "\n%s tokens, %s merges, %d special\n",
		format.Count(int64(len(vocab))),
		format.Count(int64(state.Merges().Len())),
		state.SpecialTokens().Len())
	return nil
}
