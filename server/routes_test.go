package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/minbpe/api"
	"github.com/ollama/minbpe/codec"
	"github.com/ollama/minbpe/tokenizer"
)

const corpus = "hello world, hello tokenizer. the quick brown fox jumps over the lazy dog."

func trainedState(t *testing.T) *tokenizer.State {
	t.Helper()

	s, err := tokenizer.Train(t.Context(), strings.Repeat(corpus, 4), tokenizer.NumBytes+32, tokenizer.TrainOptions{
		Variant:       tokenizer.Regex,
		SpecialTokens: map[string]int32{"<|endoftext|>": 1000},
	})
	require.NoError(t, err)
	return s
}

func newTestServer(t *testing.T, s *tokenizer.State) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv, err := NewServer(s, 16)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	switch body := body.(type) {
	case nil:
		r = httptest.NewRequest(method, path, nil)
	case string:
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	default:
		bts, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(bts))
	}

	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestTokenize(t *testing.T) {
	state := trainedState(t)
	h := newTestServer(t, state).GenerateRoutes()

	t.Run("missing body", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/tokenize", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "missing request body", decode[api.ErrorResponse](t, w).Message)
	})

	t.Run("invalid json", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/tokenize", "{")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("round trip", func(t *testing.T) {
		text := "hello world<|endoftext|>the lazy fox"
		w := do(t, h, http.MethodPost, "/api/tokenize", api.TokenizeRequest{Text: text})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		tokens := decode[api.TokenizeResponse](t, w).Tokens
		want, err := state.Encode(text)
		require.NoError(t, err)
		if diff := cmp.Diff(want, tokens); diff != "" {
			t.Errorf("no match (-want +got):\n%s", diff)
		}
		assert.Contains(t, tokens, int32(1000))

		w = do(t, h, http.MethodPost, "/api/detokenize", api.DetokenizeRequest{Tokens: tokens})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, text, decode[api.DetokenizeResponse](t, w).Text)
	})

	t.Run("empty text", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/tokenize", api.TokenizeRequest{})
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tokens":[]}`, w.Body.String())
	})

	t.Run("special not allowed", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/tokenize", api.TokenizeRequest{Text: "a<|endoftext|>", AllowedSpecial: "none_raise"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, h, http.MethodPost, "/api/tokenize", api.TokenizeRequest{Text: "a<|endoftext|>", AllowedSpecial: "none"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, decode[api.TokenizeResponse](t, w).Tokens, int32(1000))
	})

	t.Run("unknown allowed special", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/tokenize", api.TokenizeRequest{Text: "a", AllowedSpecial: "some"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDetokenizeMalformed(t *testing.T) {
	h := newTestServer(t, trainedState(t)).GenerateRoutes()

	for _, tokens := range [][]int32{{999}, {-1}, {104, 5000}} {
		w := do(t, h, http.MethodPost, "/api/detokenize", api.DetokenizeRequest{Tokens: tokens})
		assert.Equal(t, http.StatusBadRequest, w.Code, tokens)
		assert.Contains(t, decode[api.ErrorResponse](t, w).Message, "malformed input")
	}
}

func TestHealth(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		h := newTestServer(t, nil).GenerateRoutes()

		w := do(t, h, http.MethodGet, "/api/health", nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[api.HealthResponse](t, w)
		assert.Equal(t, api.StatusHealthy, resp.Status)
		assert.Equal(t, "go", resp.Implementation)
		assert.Equal(t, []string{"basic", "regex", "gpt4"}, resp.AvailableTokenizers)
		assert.Empty(t, resp.Type)

		for _, path := range []string{"/api/config", "/api/vocab"} {
			w := do(t, h, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, path)
		}

		w = do(t, h, http.MethodPost, "/api/tokenize", api.TokenizeRequest{Text: "a"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("loaded", func(t *testing.T) {
		state := trainedState(t)
		h := newTestServer(t, state).GenerateRoutes()

		resp := decode[api.HealthResponse](t, do(t, h, http.MethodGet, "/api/health", nil))
		assert.Equal(t, "regex", resp.Type)
		assert.Equal(t, state.VocabSize(), resp.VocabSize)
	})
}

func TestConfigAndLoad(t *testing.T) {
	state := trainedState(t)
	srv := newTestServer(t, nil)
	h := srv.GenerateRoutes()

	cfg := codec.Export(state)

	t.Run("invalid config keeps state", func(t *testing.T) {
		bad := *cfg
		bad.Merges = append([]codec.Merge{}, cfg.Merges...)
		bad.Merges[1].ID = bad.Merges[0].ID

		w := do(t, h, http.MethodPost, "/api/load", &bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		assert.Nil(t, srv.encoder.Load())
	})

	t.Run("load", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/load", cfg)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[api.HealthResponse](t, w)
		assert.Equal(t, "regex", resp.Type)
		assert.Equal(t, cfg.VocabSize, resp.VocabSize)
	})

	t.Run("config", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/config", nil)
		require.Equal(t, http.StatusOK, w.Code)

		got := decode[codec.Config](t, w)
		if diff := cmp.Diff(cfg, &got, cmpopts.IgnoreUnexported(codec.Merge{})); diff != "" {
			t.Errorf("no match (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid load after success keeps state", func(t *testing.T) {
		before := srv.encoder.Load()

		w := do(t, h, http.MethodPost, "/api/load", codec.Config{Type: "unknown"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Same(t, before, srv.encoder.Load())
	})
}

func TestVocab(t *testing.T) {
	state := trainedState(t)
	h := newTestServer(t, state).GenerateRoutes()

	w := do(t, h, http.MethodGet, "/api/vocab", nil)
	require.Equal(t, http.StatusOK, w.Code)

	vocab := decode[api.VocabResponse](t, w).Vocab
	assert.Len(t, vocab, state.VocabSize()+1)
	assert.Equal(t, "h", vocab['h'])
	assert.Equal(t, `\u000a`, vocab['\n'])
	assert.Equal(t, "<|endoftext|>", vocab[1000])
}

func TestClient(t *testing.T) {
	state := trainedState(t)
	ts := httptest.NewServer(newTestServer(t, state).GenerateRoutes())
	t.Cleanup(ts.Close)

	base, err := url.Parse(ts.URL)
	require.NoError(t, err)
	client := api.NewClient(base, ts.Client())

	health, err := client.Health(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "regex", health.Type)

	tokens, err := client.Tokenize(t.Context(), &api.TokenizeRequest{Text: "hello fox"})
	require.NoError(t, err)

	text, err := client.Detokenize(t.Context(), &api.DetokenizeRequest{Tokens: tokens.Tokens})
	require.NoError(t, err)
	assert.Equal(t, "hello fox", text.Text)

	_, err = client.Detokenize(t.Context(), &api.DetokenizeRequest{Tokens: []int32{5000}})
	var statusErr api.StatusError
	require.True(t, errors.As(err, &statusErr), err)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.ErrorMessage, "unknown token id 5000")

	cfg, err := client.Config(t.Context())
	require.NoError(t, err)
	assert.Len(t, cfg.Merges, state.Merges().Len())

	health, err = client.Load(t.Context(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.VocabSize, health.VocabSize)

	vocab, err := client.Vocab(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "<|endoftext|>", vocab.Vocab[1000])
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, srv) }()

	client := api.NewClient(&url.URL{Scheme: "http", Host: ln.Addr().String()}, http.DefaultClient)
	health, err := client.Health(t.Context())
	require.NoError(t, err)
	assert.Equal(t, api.StatusHealthy, health.Status)

	cancel()
	require.NoError(t, <-done)
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, nil).GenerateRoutes()

	w := do(t, h, http.MethodGet, "/api/health", nil)
	id, err := uuid.Parse(w.Header().Get("X-Request-Id"))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.Header.Set("X-Request-Id", id.String())
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, id.String(), w.Header().Get("X-Request-Id"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "not-a-uuid")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.NotEqual(t, "not-a-uuid", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "minbpe is running", w.Body.String())
}
