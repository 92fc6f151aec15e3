package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/rwavault/internal/chain"
	"github.com/dharsanguruparan/rwavault/internal/config"
	"github.com/dharsanguruparan/rwavault/internal/ledger"
	"github.com/dharsanguruparan/rwavault/internal/model"
	"github.com/dharsanguruparan/rwavault/internal/tokenize"
)

const hash = "afa27b44d43b02a9fea41d13cedc2e4016cfcf87c5dbf990e593669aa8ce286d"

type fakeTokenizer struct {
	got       []tokenize.Request
	err       error
	lookupErr error
	records   []model.AssetRecord
}

func (f *fakeTokenizer) Tokenize(_ context.Context, req tokenize.Request) (*tokenize.Result, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return &tokenize.Result{TokenID: 1, MetadataURI: "ipfs://" + hash, ContentHash: hash, TxHash: "0x01"}, nil
}

func (f *fakeTokenizer) Lookup(context.Context, string) ([]model.AssetRecord, error) {
	return f.records, f.lookupErr
}

type fakePresigner struct {
	ttl time.Duration
}

func (f *fakePresigner) PresignURL(_ context.Context, h string, ttl time.Duration) (string, error) {
	f.ttl = ttl
	return "https://s3.local/rwa-assets/assets/" + h + "?sig=x", nil
}

func testConfig() *config.Config {
	return &config.Config{Address: ":0", MaxFileSize: 1024, SignedURLTTL: 5 * time.Minute, ShutdownTimeout: time.Second}
}

func newTestServer(svc Tokenizer, archive Presigner) http.Handler {
	return New(testConfig(), svc, archive, prometheus.NewRegistry(), zap.NewNop()).Handler()
}

type field struct {
	name, file, value string
}

func multipartBody(t *testing.T, fields ...field) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, f := range fields {
		if f.file != "" {
			w, err := mw.CreateFormFile(f.name, f.file)
			require.NoError(t, err)
			_, err = w.Write([]byte(f.value))
			require.NoError(t, err)
			continue
		}
		require.NoError(t, mw.WriteField(f.name, f.value))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func postTokenize(t *testing.T, h http.Handler, fields ...field) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields...)
	req := httptest.NewRequest(http.MethodPost, "/tokenize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTokenizeSuccess(t *testing.T) {
	for name, order := range map[string][]field{
		"owner first": {{name: "owner", value: " 0xabc "}, {name: "asset", file: "hello.txt", value: "hello world"}},
		"asset first": {{name: "asset", file: "hello.txt", value: "hello world"}, {name: "owner", value: "0xabc"}},
	} {
		t.Run(name, func(t *testing.T) {
			svc := &fakeTokenizer{}
			rec := postTokenize(t, newTestServer(svc, nil), order...)
			require.Equal(t, http.StatusOK, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, true, body["success"])
			assert.Equal(t, float64(1), body["tokenId"])
			assert.Equal(t, "ipfs://"+hash, body["metadataURI"])

			require.Len(t, svc.got, 1)
			assert.Equal(t, []byte("hello world"), svc.got[0].Data)
			assert.Equal(t, "hello.txt", svc.got[0].FileName)
			assert.Equal(t, "0xabc", svc.got[0].Owner)
		})
	}
}

func TestTokenizeFailuresAreGeneric(t *testing.T) {
	for name, err := range map[string]error{
		"input":       &tokenize.InputError{Field: "owner", Reason: "required"},
		"transaction": &chain.TransactionError{Op: "mint", Err: chain.ErrReverted},
		"unconfirmed": &chain.UnconfirmedError{Op: "mint", Err: context.DeadlineExceeded},
		"persistence": &tokenize.PersistenceError{Record: model.AssetRecord{TokenID: 4}, Err: errors.New("db down")},
	} {
		t.Run(name, func(t *testing.T) {
			rec := postTokenize(t, newTestServer(&fakeTokenizer{err: err}, nil),
				field{name: "asset", file: "a.txt", value: "x"}, field{name: "owner", value: "0xabc"})
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
		})
	}
}

func TestTokenizeRejectsOversizedAsset(t *testing.T) {
	svc := &fakeTokenizer{}
	rec := postTokenize(t, newTestServer(svc, nil),
		field{name: "owner", value: "0xabc"}, field{name: "asset", file: "big.bin", value: string(make([]byte, 2048))})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, svc.got)
}

func TestTokenizeMissingAsset(t *testing.T) {
	svc := &fakeTokenizer{}
	rec := postTokenize(t, newTestServer(svc, nil), field{name: "owner", value: "0xabc"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, svc.got)
}

func TestTokenizeMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeTokenizer{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tokenize", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetAsset(t *testing.T) {
	svc := &fakeTokenizer{records: []model.AssetRecord{{ContentHash: hash, TokenID: 1}, {ContentHash: hash, TokenID: 2}}}
	rec := get(newTestServer(svc, nil), "/assets/"+hash)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ContentHash string              `json:"contentHash"`
		Records     []model.AssetRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, hash, body.ContentHash)
	assert.Len(t, body.Records, 2)
}

func TestGetAssetErrors(t *testing.T) {
	h := newTestServer(&fakeTokenizer{lookupErr: &tokenize.InputError{Field: "hash", Reason: "bad"}}, nil)
	assert.Equal(t, http.StatusBadRequest, get(h, "/assets/zz").Code)

	h = newTestServer(&fakeTokenizer{lookupErr: ledger.ErrNotFound}, nil)
	assert.Equal(t, http.StatusNotFound, get(h, "/assets/"+hash).Code)

	h = newTestServer(&fakeTokenizer{lookupErr: errors.New("db down")}, nil)
	assert.Equal(t, http.StatusInternalServerError, get(h, "/assets/"+hash).Code)

	assert.Equal(t, http.StatusNotFound, get(h, "/assets/"+hash+"/unknown").Code)
}

func TestDocumentURL(t *testing.T) {
	svc := &fakeTokenizer{records: []model.AssetRecord{{ContentHash: hash, TokenID: 1}}}
	presigner := &fakePresigner{}
	rec := get(newTestServer(svc, presigner), "/assets/"+hash+"/document-url")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["url"], "assets/"+hash)
	assert.NotEmpty(t, body["expires"])
	assert.Equal(t, 5*time.Minute, presigner.ttl)
}

func TestDocumentURLArchiveDisabled(t *testing.T) {
	svc := &fakeTokenizer{records: []model.AssetRecord{{ContentHash: hash}}}
	assert.Equal(t, http.StatusNotFound, get(newTestServer(svc, nil), "/assets/"+hash+"/document-url").Code)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "rwavault_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	h := New(testConfig(), &fakeTokenizer{}, nil, reg, zap.NewNop()).Handler()

	rec := get(h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rwavault_test_total 1")

	opts := httptest.NewRecorder()
	h.ServeHTTP(opts, httptest.NewRequest(http.MethodOptions, "/tokenize", nil))
	assert.Equal(t, http.StatusNoContent, opts.Code)
	assert.Equal(t, "*", opts.Header().Get("Access-Control-Allow-Origin"))
}
