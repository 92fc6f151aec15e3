// Package tokenize turns an uploaded document into an on-chain token and a
// ledger record: hash the bytes, mint with the hash as metadata, then persist
// the mint outcome.
package tokenize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/rwavault/internal/chain"
	"github.com/dharsanguruparan/rwavault/internal/config"
	"github.com/dharsanguruparan/rwavault/internal/contenthash"
	"github.com/dharsanguruparan/rwavault/internal/ledger"
	"github.com/dharsanguruparan/rwavault/internal/metrics"
	"github.com/dharsanguruparan/rwavault/internal/model"
	pdfutil "github.com/dharsanguruparan/rwavault/internal/pdf"
)

const (
	defaultMintTimeout    = 2 * time.Minute
	defaultPersistTimeout = 30 * time.Second
)

// Minter submits the mint transaction and waits for its event.
type Minter interface {
	Mint(ctx context.Context, owner common.Address, metadataURI string, custodian common.Address) (*chain.MintResult, error)
}

// Archiver stores the raw document bytes by content hash.
type Archiver interface {
	Put(ctx context.Context, contentHash string, data []byte, contentType string) error
}

// Reconciler accepts ledger records whose write failed after a mint.
type Reconciler interface {
	EnqueueReconcile(ctx context.Context, rec model.AssetRecord) error
}

// Options configures a Service. Archive and Reconciler are optional.
type Options struct {
	Custodian       common.Address
	MetadataScheme  string
	DuplicatePolicy string
	MintTimeout     time.Duration
	Archive         Archiver
	Reconciler      Reconciler
	Metrics         *metrics.Tokenize
	Logger          *zap.Logger
	Now             func() time.Time
}

// Request is one upload to tokenize.
type Request struct {
	Data     []byte
	FileName string
	Owner    string
}

// Result describes a minted and recorded asset.
type Result struct {
	TokenID     uint64 `json:"tokenId"`
	MetadataURI string `json:"metadataURI"`
	ContentHash string `json:"contentHash"`
	TxHash      string `json:"txHash"`
}

// Service runs the tokenization pipeline.
type Service struct {
	minter     Minter
	ledger     ledger.Ledger
	archive    Archiver
	reconciler Reconciler
	metrics    *metrics.Tokenize
	logger     *zap.Logger
	now        func() time.Time

	custodian   common.Address
	scheme      string
	policy      string
	mintTimeout time.Duration

	locks *keyedLocks
}

// New builds a Service.
func New(minter Minter, l ledger.Ledger, opts Options) *Service {
	s := &Service{
		minter:      minter,
		ledger:      l,
		archive:     opts.Archive,
		reconciler:  opts.Reconciler,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         opts.Now,
		custodian:   opts.Custodian,
		scheme:      opts.MetadataScheme,
		policy:      opts.DuplicatePolicy,
		mintTimeout: opts.MintTimeout,
		locks:       newKeyedLocks(),
	}
	if s.metrics == nil {
		s.metrics = metrics.NewTokenize(nil)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("tokenize")
	if s.now == nil {
		s.now = time.Now
	}
	if s.scheme == "" {
		s.scheme = "ipfs"
	}
	if s.policy == "" {
		s.policy = config.PolicyAllowDuplicate
	}
	if s.mintTimeout <= 0 {
		s.mintTimeout = defaultMintTimeout
	}
	return s
}

// Tokenize hashes req.Data, mints a token pointing at the hash, and records
// the outcome. A record is written only after the mint event was decoded.
// Once the mint is submitted the call runs to completion even if ctx is
// cancelled.
func (s *Service) Tokenize(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	defer func() {
		s.metrics.Results.WithLabelValues(Kind(err)).Inc()
		s.metrics.Duration.Observe(time.Since(start).Seconds())
	}()

	owner, err := validate(req)
	if err != nil {
		return nil, err
	}

	hash := contenthash.Sum(req.Data)
	uri := contenthash.MetadataURI(s.scheme, hash)
	contentType := http.DetectContentType(req.Data)
	pages := 0
	if contentType == pdfutil.ContentType {
		if pages, err = pdfutil.PageCount(req.Data); err != nil {
			return nil, &InputError{Field: "asset", Reason: err.Error()}
		}
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = "upload-" + hash[:12]
	}

	log := s.logger.With(
		zap.String("contentHash", hash),
		zap.String("owner", owner.Hex()),
		zap.String("fileName", fileName),
	)

	unlock, err := s.locks.Lock(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if s.policy == config.PolicyRejectDuplicate {
		existing, err := s.ledger.FindByHash(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("lookup ledger: %w", err)
		}
		if len(existing) > 0 {
			ids := make([]uint64, len(existing))
			for i, rec := range existing {
				ids[i] = rec.TokenID
			}
			log.Info("duplicate content rejected", zap.Uint64s("tokenIds", ids))
			return nil, &DuplicateError{ContentHash: hash, TokenIDs: ids}
		}
	}

	if s.archive != nil {
		if err := s.archive.Put(ctx, hash, req.Data, contentType); err != nil {
			log.Error("archive upload failed", zap.Error(err))
			return nil, fmt.Errorf("archive document: %w", err)
		}
	}

	// Last point at which the caller can still abandon the request.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mintCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mintTimeout)
	defer cancel()
	minted, err := s.minter.Mint(mintCtx, owner, uri, s.custodian)
	if err != nil {
		var pending *chain.UnconfirmedError
		switch kind := Kind(err); {
		case errors.As(err, &pending):
			// The token may still be minted; an operator has to check the tx.
			log.Error("mint unconfirmed", zap.String("kind", kind), zap.String("txHash", pending.TxHash.Hex()), zap.Error(err))
		case kind == KindEventDecode:
			log.Error("mint event not decoded", zap.String("kind", kind), zap.Error(err))
		default:
			log.Warn("mint failed", zap.String("kind", kind), zap.Error(err))
		}
		return nil, err
	}

	rec := model.AssetRecord{
		ContentHash: hash,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(req.Data)),
		PageCount:   pages,
		MetadataURI: uri,
		Owner:       owner.Hex(),
		TokenID:     minted.TokenID,
		TxHash:      minted.Receipt.TxHash.Hex(),
		Timestamp:   s.now().UTC(),
	}
	log = log.With(zap.Uint64("tokenId", rec.TokenID), zap.String("txHash", rec.TxHash))

	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), defaultPersistTimeout)
	defer cancelPersist()
	if err := s.ledger.Insert(persistCtx, &rec); err != nil {
		return nil, s.orphaned(persistCtx, log, rec, err)
	}

	log.Info("asset tokenized", zap.String("id", rec.ID))
	return &Result{
		TokenID:     rec.TokenID,
		MetadataURI: rec.MetadataURI,
		ContentHash: rec.ContentHash,
		TxHash:      rec.TxHash,
	}, nil
}

// orphaned handles a mint whose ledger write failed. The token exists on
// chain, so the record is logged in full and handed to the reconcile queue.
func (s *Service) orphaned(ctx context.Context, log *zap.Logger, rec model.AssetRecord, cause error) error {
	perr := &PersistenceError{Record: rec, Err: cause}
	log.Error("ledger write failed after mint",
		zap.String("metadataURI", rec.MetadataURI),
		zap.Time("timestamp", rec.Timestamp),
		zap.Error(cause),
	)
	if s.reconciler == nil {
		return perr
	}
	if err := s.reconciler.EnqueueReconcile(ctx, rec); err != nil {
		log.Error("reconcile enqueue failed", zap.Error(err))
		return perr
	}
	perr.Queued = true
	log.Warn("ledger write queued for reconciliation")
	return perr
}

func validate(req Request) (common.Address, error) {
	if len(req.Data) == 0 {
		return common.Address{}, &InputError{Field: "asset", Reason: "file is empty"}
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return common.Address{}, &InputError{Field: "owner", Reason: "required"}
	}
	if !common.IsHexAddress(owner) {
		return common.Address{}, &InputError{Field: "owner", Reason: "not a hex address"}
	}
	addr := common.HexToAddress(owner)
	if addr == (common.Address{}) {
		return common.Address{}, &InputError{Field: "owner", Reason: "zero address"}
	}
	return addr, nil
}

// Lookup returns every ledger record for a content hash.
func (s *Service) Lookup(ctx context.Context, hash string) ([]model.AssetRecord, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !contenthash.Valid(hash) {
		return nil, &InputError{Field: "hash", Reason: "not a sha-256 hex digest"}
	}
	records, err := s.ledger.FindByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup ledger: %w", err)
	}
	if len(records) == 0 {
		return nil, ledger.ErrNotFound
	}
	return records, nil
}
