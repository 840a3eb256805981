package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/ollama/minbpe/codec"
	"github.com/ollama/minbpe/envconfig"
)

// Client talks to a running minbpe server.
type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{base: base, http: http}
}

// ClientFromEnvironment builds a client for MINBPE_HOST.
func ClientFromEnvironment() (*Client, error) {
	hp, err := envconfig.Host()
	if err != nil {
		return nil, err
	}

	return &Client{
		base: &url.URL{Scheme: "http", Host: hp.String()},
		http: http.DefaultClient,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var body io.Reader
	if reqData != nil {
		bts, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		body = bytes.NewReader(bts)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	bts, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode >= http.StatusBadRequest {
		var errResp ErrorResponse
		_ = json.Unmarshal(bts, &errResp)
		return StatusError{
			StatusCode:   response.StatusCode,
			Status:       response.Status,
			ErrorMessage: errResp.Message,
		}
	}

	if respData != nil {
		return json.Unmarshal(bts, respData)
	}

	return nil
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Tokenize(ctx context.Context, req *TokenizeRequest) (*TokenizeResponse, error) {
	var resp TokenizeResponse
	if err := c.do(ctx, http.MethodPost, "/api/tokenize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Detokenize(ctx context.Context, req *DetokenizeRequest) (*DetokenizeResponse, error) {
	var resp DetokenizeResponse
	if err := c.do(ctx, http.MethodPost, "/api/detokenize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Config fetches the server's current tokenizer.
func (c *Client) Config(ctx context.Context) (*codec.Config, error) {
	var resp codec.Config
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Load replaces the server's tokenizer with cfg.
func (c *Client) Load(ctx context.Context, cfg *codec.Config) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodPost, "/api/load", cfg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Vocab(ctx context.Context) (*VocabResponse, error) {
	var resp VocabResponse
	if err := c.do(ctx, http.MethodGet, "/api/vocab", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
