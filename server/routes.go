// Package server exposes a tokenizer over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ollama/minbpe/api"
	"github.com/ollama/minbpe/codec"
	"github.com/ollama/minbpe/tokenizer"
	"github.com/ollama/minbpe/version"
)

var errNoTokenizer = fmt.Errorf("%w: no tokenizer loaded", tokenizer.ErrInvalidState)

// Server serves one tokenizer at a time. Requests in flight keep the
// encoder they started with when /api/load swaps it.
type Server struct {
	encoder   atomic.Pointer[tokenizer.Encoder]
	cacheSize int
}

// NewServer returns a server for s. A nil s starts the server empty until a
// config is posted to /api/load.
func NewServer(s *tokenizer.State, cacheSize int) (*Server, error) {
	srv := &Server{cacheSize: cacheSize}
	if s != nil {
		if err := srv.swap(s); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

func (s *Server) swap(state *tokenizer.State) error {
	e, err := tokenizer.NewEncoder(state, tokenizer.WithCache(s.cacheSize))
	if err != nil {
		return err
	}

	s.encoder.Store(e)
	return nil
}

func (s *Server) current() (*tokenizer.Encoder, error) {
	if e := s.encoder.Load(); e != nil {
		return e, nil
	}
	return nil, errNoTokenizer
}

// statusFor maps tokenizer errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tokenizer.ErrMalformedInput),
		errors.Is(err, tokenizer.ErrInvalidState),
		errors.Is(err, tokenizer.ErrInvalidConfiguration),
		errors.Is(err, tokenizer.ErrDuplicateSpecialToken),
		errors.Is(err, tokenizer.ErrIDCollision):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), api.ErrorResponse{Message: err.Error()})
}

// bind decodes the request body into v, rejecting an empty body.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.ErrorResponse{Message: "missing request body"})
		return false
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.ErrorResponse{Message: err.Error()})
		return false
	}
	return true
}

func (s *Server) TokenizeHandler(c *gin.Context) {
	var req api.TokenizeRequest
	if !bind(c, &req) {
		return
	}

	allowed, err := tokenizer.ParseAllowedSpecial(req.AllowedSpecial)
	if err != nil {
		abort(c, err)
		return
	}

	e, err := s.current()
	if err != nil {
		abort(c, err)
		return
	}

	ids, err := e.EncodeSpecial(req.Text, allowed)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, api.TokenizeResponse{Tokens: ids})
}

func (s *Server) DetokenizeHandler(c *gin.Context) {
	var req api.DetokenizeRequest
	if !bind(c, &req) {
		return
	}

	e, err := s.current()
	if err != nil {
		abort(c, err)
		return
	}

	text, err := e.State().Decode(req.Tokens)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, api.DetokenizeResponse{Text: text})
}

func (s *Server) health() api.HealthResponse {
	resp := api.HealthResponse{
		Status:              api.StatusHealthy,
		Implementation:      codec.Implementation,
		Version:             version.Version,
		AvailableTokenizers: availableTokenizers(),
	}

	if e := s.encoder.Load(); e != nil {
		resp.Type = string(e.State().Variant())
		resp.VocabSize = e.State().VocabSize()
	}

	return resp
}

func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.health())
}

func (s *Server) ConfigHandler(c *gin.Context) {
	e, err := s.current()
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, codec.Export(e.State()))
}

// LoadHandler replaces the tokenizer. The current one stays in place when
// the posted config does not import.
func (s *Server) LoadHandler(c *gin.Context) {
	var cfg codec.Config
	if !bind(c, &cfg) {
		return
	}

	state, err := codec.Import(&cfg)
	if err != nil {
		abort(c, err)
		return
	}

	if err := s.swap(state); err != nil {
		abort(c, err)
		return
	}

	slog.Info("loaded tokenizer", "type", state.Variant(), "vocab_size", state.VocabSize())
	c.JSON(http.StatusOK, s.health())
}

func (s *Server) VocabHandler(c *gin.Context) {
	e, err := s.current()
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, api.VocabResponse{Vocab: e.State().RenderVocabulary()})
}

func availableTokenizers() []string {
	names := make([]string, len(tokenizer.Variants))
	for i, v := range tokenizer.Variants {
		names[i] = string(v)
	}
	return names
}

// requestIDHeader carries the id every request is logged under.
const requestIDHeader = "X-Request-Id"

func requestLogger(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)

	start := time.Now()
	c.Next()

	slog.Debug("request", "id", id, "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
}

func (s *Server) GenerateRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger)

	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "minbpe is running") })
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "minbpe is running") })

	r.GET("/api/health", s.HealthHandler)
	r.GET("/api/config", s.ConfigHandler)
	r.GET("/api/vocab", s.VocabHandler)
	r.POST("/api/tokenize", s.TokenizeHandler)
	r.POST("/api/detokenize", s.DetokenizeHandler)
	r.POST("/api/load", s.LoadHandler)

	return r
}

// Serve handles requests on ln until ctx is done.
func Serve(ctx context.Context, ln net.Listener, s *Server) error {
	srvr := &http.Server{
		Handler: s.GenerateRoutes(),
	}

	go func() {
		<-ctx.Done()
		srvr.Close()
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	if err := srvr.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
