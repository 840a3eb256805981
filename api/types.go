// Package api holds the records exchanged by the minbpe CLI and server.
package api

// Result is printed by every CLI command. Fields that do not apply to a
// command are omitted.
type Result struct {
	Status         string `json:"status"`
	Command        string `json:"command,omitempty"`
	TokenizerType  string `json:"tokenizer_type,omitempty"`
	VocabSize      int    `json:"vocab_size,omitempty"`
	ConfigFile     string `json:"config_file,omitempty"`
	OutputFile     string `json:"output_file,omitempty"`
	VocabFile      string `json:"vocab_file,omitempty"`
	Implementation string `json:"implementation"`
	Error          string `json:"error,omitempty"`

	// train
	Merges int `json:"merges,omitempty"`

	// encode and decode
	InputLength  int     `json:"input_length,omitempty"`
	OutputLength int     `json:"output_length,omitempty"`
	TokenCount   int     `json:"token_count,omitempty"`
	Tokens       []int32 `json:"tokens,omitempty"`
	Text         string  `json:"text,omitempty"`

	// load
	RoundTripTest *bool `json:"round_trip_test,omitempty"`
	TestTokens    int   `json:"test_tokens,omitempty"`

	// health
	AvailableTokenizers []string `json:"available_tokenizers,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "error"
	StatusHealthy = "healthy"
)

type TokenizeRequest struct {
	Text string `json:"text"`

	// AllowedSpecial is one of "all", "none" or "none_raise". Empty means
	// "all".
	AllowedSpecial string `json:"allowed_special,omitempty"`
}

type TokenizeResponse struct {
	Tokens []int32 `json:"tokens"`
}

type DetokenizeRequest struct {
	Tokens []int32 `json:"tokens"`
}

type DetokenizeResponse struct {
	Text string `json:"text"`
}

type HealthResponse struct {
	Status              string   `json:"status"`
	Implementation      string   `json:"implementation"`
	Version             string   `json:"version"`
	AvailableTokenizers []string `json:"available_tokenizers"`
	Type                string   `json:"type,omitempty"`
	VocabSize           int      `json:"vocab_size,omitempty"`
}

// VocabResponse maps token ids to their rendered text.
type VocabResponse struct {
	Vocab map[int32]string `json:"vocab"`
}
