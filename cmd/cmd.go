// Package cmd implements the minbpe command line.
package cmd

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/minbpe/api"
	"github.com/ollama/minbpe/codec"
	"github.com/ollama/minbpe/envconfig"
	"github.com/ollama/minbpe/logutil"
	"github.com/ollama/minbpe/progress"
	"github.com/ollama/minbpe/tokenizer"
	"github.com/ollama/minbpe/version"
)

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "minbpe",
		Short:   "Byte pair encoding tokenizer",
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(os.Stderr, logutil.Level(envconfig.Debug, envconfig.Trace)))
		},
	}

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		NewTrainCmd(),
		NewEncodeCmd(),
		NewDecodeCmd(),
		NewExportCmd(),
		NewLoadCmd(),
		NewHealthCmd(),
		NewVocabCmd(),
		NewServeCmd(),
		NewConfigCmd(),
	)

	return rootCmd
}

type handlerFunc func(cmd *cobra.Command, args []string) (*api.Result, error)

// withResult prints the result of fn as JSON. Failures print an error
// record before the error is returned to cobra.
func withResult(name string, fn handlerFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		r, err := fn(cmd, args)
		if err != nil {
			slog.Error(name+" failed", "error", err)
			r = &api.Result{Status: api.StatusFailed, Error: err.Error()}
		}

		r.Command = cmp.Or(r.Command, name)
		r.Implementation = codec.Implementation
		if perr := printJSON(cmd.OutOrStdout(), r); perr != nil {
			return errors.Join(err, perr)
		}

		return err
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeJSON(name string, v any) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := printJSON(f, v); err != nil {
		return err
	}

	return f.Close()
}

// readText returns the contents of arg when it names a file and arg itself
// otherwise.
func readText(arg string) (string, error) {
	fi, err := os.Stat(arg)
	if err != nil || !fi.Mode().IsRegular() {
		return arg, nil
	}

	b, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func loadState(name string) (*tokenizer.State, error) {
	cfg, err := codec.ReadFile(name)
	if err != nil {
		return nil, err
	}

	var state *tokenizer.State
	err = spin(fmt.Sprintf("loading %s tokenizer", cfg.Type), func() error {
		state, err = codec.Import(cfg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return state, nil
}

func showProgress() bool {
	return !envconfig.NoProgress && progress.Enabled(os.Stderr)
}

// spin runs fn behind a spinner when progress is shown.
func spin(message string, fn func() error) error {
	if !showProgress() {
		return fn()
	}

	p := progress.NewProgress(os.Stderr)
	defer p.StopAndClear()

	p.Add(progress.NewSpinner(message))
	return fn()
}

func availableTokenizers() []string {
	names := make([]string, len(tokenizer.Variants))
	for i, v := range tokenizer.Variants {
		names[i] = string(v)
	}
	return names
}

func appendEnvDocs(cmd *cobra.Command, envs []string) {
	if len(envs) == 0 {
		return
	}

	all := envconfig.AsMap()
	var sb strings.Builder
	sb.WriteString(`
Environment Variables:
`)
	for _, name := range slices.Sorted(slices.Values(envs)) {
		if e, ok := all[name]; ok {
			fmt.Fprintf(&sb, "      %-22s %s\n", e.Name, e.Description)
		}
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + sb.String())
}
