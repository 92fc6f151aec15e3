// Package api exposes the tokenization service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/rwavault/internal/config"
	"github.com/dharsanguruparan/rwavault/internal/ledger"
	"github.com/dharsanguruparan/rwavault/internal/model"
	"github.com/dharsanguruparan/rwavault/internal/tokenize"
)

const internalError = "Internal server error"

// Tokenizer is the service behind the HTTP routes.
type Tokenizer interface {
	Tokenize(ctx context.Context, req tokenize.Request) (*tokenize.Result, error)
	Lookup(ctx context.Context, hash string) ([]model.AssetRecord, error)
}

// Presigner issues time-limited download URLs for archived documents.
type Presigner interface {
	PresignURL(ctx context.Context, contentHash string, ttl time.Duration) (string, error)
}

// Server exposes HTTP endpoints for tokenization and asset lookup.
type Server struct {
	cfg      *config.Config
	svc      Tokenizer
	archive  Presigner
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	server   *http.Server
	once     sync.Once
}

// New constructs a Server. archive may be nil when archiving is disabled.
func New(cfg *config.Config, svc Tokenizer, archive Presigner, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:      cfg,
		svc:      svc,
		archive:  archive,
		gatherer: gatherer,
		logger:   logger.Named("api"),
	}
}

// Handler returns the routed handler wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/tokenize", s.handleTokenize)
	mux.HandleFunc("/assets/", s.handleAssetRoute)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return corsMiddleware(s.loggingMiddleware(mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown incomplete", zap.Error(err))
		}
	}()
	s.logger.Info("api listening", zap.String("address", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tokenizeResponse struct {
	Success     bool   `json:"success"`
	TokenID     uint64 `json:"tokenId"`
	MetadataURI string `json:"metadataURI"`
	ContentHash string `json:"contentHash"`
	TxHash      string `json:"txHash"`
}

// handleTokenize reads the asset and owner fields in any order. Every
// failure maps to the same 500 body; the log line carries the error kind.
func (s *Server) handleTokenize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1024)
	req, err := s.readUpload(r)
	if err != nil {
		s.logger.Info("tokenize upload rejected", zap.String("kind", tokenize.KindInput), zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": internalError})
		return
	}
	res, err := s.svc.Tokenize(r.Context(), req)
	if err != nil {
		kind := tokenize.Kind(err)
		fields := []zap.Field{
			zap.String("kind", kind),
			zap.String("owner", req.Owner),
			zap.String("fileName", req.FileName),
			zap.Error(err),
		}
		switch kind {
		case tokenize.KindInput, tokenize.KindDuplicate:
			s.logger.Info("tokenize rejected", fields...)
		case tokenize.KindTransaction, tokenize.KindCanceled:
			s.logger.Warn("tokenize failed", fields...)
		default:
			s.logger.Error("tokenize failed", fields...)
		}
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": internalError})
		return
	}
	s.respondJSON(w, http.StatusOK, tokenizeResponse{
		Success:     true,
		TokenID:     res.TokenID,
		MetadataURI: res.MetadataURI,
		ContentHash: res.ContentHash,
		TxHash:      res.TxHash,
	})
}

func (s *Server) readUpload(r *http.Request) (tokenize.Request, error) {
	var req tokenize.Request
	mr, err := r.MultipartReader()
	if err != nil {
		return req, fmt.Errorf("expecting multipart form: %w", err)
	}
	seenAsset := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return req, fmt.Errorf("read upload: %w", err)
		}
		switch part.FormName() {
		case "asset":
			if seenAsset {
				part.Close()
				continue
			}
			req.Data, err = readLimited(part, s.cfg.MaxFileSize)
			req.FileName = part.FileName()
			seenAsset = true
		case "owner":
			var raw []byte
			raw, err = readLimited(part, 256)
			req.Owner = strings.TrimSpace(string(raw))
		}
		part.Close()
		if err != nil {
			return req, err
		}
	}
	if !seenAsset {
		return req, errors.New("missing asset part")
	}
	return req, nil
}

func readLimited(part *multipart.Part, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(part, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", part.FormName(), err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds limit (%d bytes)", part.FormName(), limit)
	}
	return data, nil
}

func (s *Server) handleAssetRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/assets/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	hash := parts[0]
	if len(parts) == 1 {
		s.handleAsset(w, r, hash)
		return
	}
	if parts[1] == "document-url" {
		s.handleDocumentURL(w, r, hash)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request, hash string) {
	records, ok := s.lookup(w, r, hash)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"contentHash": records[0].ContentHash,
		"records":     records,
	})
}

func (s *Server) handleDocumentURL(w http.ResponseWriter, r *http.Request, hash string) {
	if s.archive == nil {
		http.Error(w, "document archive disabled", http.StatusNotFound)
		return
	}
	records, ok := s.lookup(w, r, hash)
	if !ok {
		return
	}
	ttl := s.cfg.SignedURLTTL
	url, err := s.archive.PresignURL(r.Context(), records[0].ContentHash, ttl)
	if err != nil {
		s.logger.Error("presign document url failed", zap.String("contentHash", records[0].ContentHash), zap.Error(err))
		http.Error(w, "failed to generate url", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"url":     url,
		"expires": time.Now().Add(ttl).UTC().Format(time.RFC3339),
	})
}

// lookup writes the error response itself and reports whether records were
// found.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, hash string) ([]model.AssetRecord, bool) {
	records, err := s.svc.Lookup(r.Context(), hash)
	if err == nil {
		return records, true
	}
	var inputErr *tokenize.InputError
	switch {
	case errors.As(err, &inputErr):
		http.Error(w, inputErr.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, "asset not found", http.StatusNotFound)
	default:
		s.logger.Error("asset lookup failed", zap.String("hash", hash), zap.Error(err))
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": internalError})
	}
	return nil, false
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}
