// Package model contains simple struct definitions shared across packages.
package model

import (
	"time"
)

// AssetRecord is the ledger entry written once a document has been minted.
// Records are never updated: TokenID is only known after the chain confirmed
// the mint, so no record exists for an unconfirmed mint.
type AssetRecord struct {
	ID          string `json:"id"`
	ContentHash string `json:"contentHash"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
	// PageCount is set for PDF uploads only.
	PageCount   int       `json:"pageCount,omitempty"`
	MetadataURI string    `json:"metadataURI"`
	Owner       string    `json:"owner"`
	TokenID     uint64    `json:"tokenId"`
	TxHash      string    `json:"txHash"`
	Timestamp   time.Time `json:"timestamp"`
}
