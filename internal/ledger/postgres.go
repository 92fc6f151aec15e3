package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/rwavault/internal/model"
)

// Postgres wraps all SQL used by the api, worker and CLI.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a ledger over an existing pool. The assets table
// must already exist (see database.EnsureSchema).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const selectColumns = `id, content_hash, file_name, content_type, size, page_count, metadata_uri, owner, token_id::text, tx_hash, created_at`

// Insert adds a record. token_id is unique, so replaying the same mint
// reports ErrExists instead of creating a second row.
func (p *Postgres) Insert(ctx context.Context, rec *model.AssetRecord) error {
	candidate := *rec
	prepare(&candidate)
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO assets (id, content_hash, file_name, content_type, size, page_count, metadata_uri, owner, token_id, tx_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (token_id) DO NOTHING
	`, candidate.ID, candidate.ContentHash, candidate.FileName, candidate.ContentType, candidate.Size, candidate.PageCount,
		candidate.MetadataURI, candidate.Owner, numericTokenID(candidate.TokenID), candidate.TxHash, candidate.Timestamp)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	*rec = candidate
	return nil
}

// FindByHash returns all records for a content hash ordered by creation time.
func (p *Postgres) FindByHash(ctx context.Context, contentHash string) ([]model.AssetRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+selectColumns+` FROM assets WHERE content_hash=$1 ORDER BY created_at`, contentHash)
	if err != nil {
		return nil, fmt.Errorf("select assets: %w", err)
	}
	defer rows.Close()
	var out []model.AssetRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return out, nil
}

// GetByTokenID returns the record for a minted token.
func (p *Postgres) GetByTokenID(ctx context.Context, tokenID uint64) (*model.AssetRecord, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM assets WHERE token_id=$1`, numericTokenID(tokenID))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*model.AssetRecord, error) {
	var (
		rec         model.AssetRecord
		contentType sql.NullString
		pageCount   sql.NullInt32
		tokenID     string
	)
	err := row.Scan(&rec.ID, &rec.ContentHash, &rec.FileName, &contentType, &rec.Size, &pageCount,
		&rec.MetadataURI, &rec.Owner, &tokenID, &rec.TxHash, &rec.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	if contentType.Valid {
		rec.ContentType = contentType.String
	}
	if pageCount.Valid {
		rec.PageCount = int(pageCount.Int32)
	}
	if rec.TokenID, err = parseTokenID(tokenID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// token_id is NUMERIC(20) so the full uint64 range sorts and compares as
// unsigned in SQL.
func numericTokenID(id uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(id), Valid: true}
}

func parseTokenID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("scan asset token_id %q: %w", s, err)
	}
	return id, nil
}
