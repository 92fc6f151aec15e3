// Package config centralizes how rwavault reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. RWAVAULT_RPC_URL.
const Prefix = "rwavault"

// Duplicate handling policies for content that already has a ledger record.
const (
	PolicyAllowDuplicate  = "allow-duplicate"
	PolicyRejectDuplicate = "reject-duplicate"
)

// Ledger drivers.
const (
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

const (
	defaultMaxFileSize = 25 << 20 // 25 MiB
	defaultWorkerCount = 2
)

// Config represents runtime configuration shared by the api and worker
// binaries and the CLI. Each validates only the sections it uses.
type Config struct {
	Address         string        `envconfig:"ADDRESS" default:":3000"`
	LogMode         string        `envconfig:"LOG_MODE" default:"production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	MaxFileSize     int64         `envconfig:"MAX_FILE_BYTES" default:"26214400"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`

	RPCURL           string        `envconfig:"RPC_URL"`
	PrivateKey       string        `envconfig:"PRIVATE_KEY"`
	NFTContract      string        `envconfig:"NFT_CONTRACT"`
	ContractABIPath  string        `envconfig:"CONTRACT_ABI_PATH"`
	MintEvent        string        `envconfig:"MINT_EVENT" default:"NFTMinted"`
	MintGasLimit     uint64        `envconfig:"MINT_GAS_LIMIT" default:"500000"`
	CustodianAddress string        `envconfig:"CUSTODIAN_ADDRESS"`
	ReceiptTimeout   time.Duration `envconfig:"RECEIPT_TIMEOUT" default:"2m"`

	MetadataScheme  string `envconfig:"METADATA_SCHEME" default:"ipfs"`
	DuplicatePolicy string `envconfig:"DUPLICATE_POLICY" default:"allow-duplicate"`

	LedgerDriver string `envconfig:"LEDGER_DRIVER" default:"postgres"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	RedisAddr         string `envconfig:"REDIS_ADDR"`
	RedisPassword     string `envconfig:"REDIS_PASSWORD"`
	RedisDB           int    `envconfig:"REDIS_DB"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"2"`

	S3Endpoint    string        `envconfig:"S3_ENDPOINT"`
	S3AccessKey   string        `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey   string        `envconfig:"S3_SECRET_KEY"`
	S3UseSSL      bool          `envconfig:"S3_USE_SSL"`
	S3Region      string        `envconfig:"S3_REGION"`
	ArchiveBucket string        `envconfig:"ARCHIVE_BUCKET" default:"rwa-assets"`
	SignedURLTTL  time.Duration `envconfig:"SIGNED_URL_TTL" default:"5m"`

	StakingContract   string        `envconfig:"STAKING_CONTRACT"`
	StakeWallet       string        `envconfig:"STAKE_WALLET"`
	StakeToken        string        `envconfig:"STAKE_TOKEN"`
	StakeGasLimit     uint64        `envconfig:"STAKE_GAS_LIMIT" default:"300000"`
	StakeTimeout      time.Duration `envconfig:"STAKE_TIMEOUT" default:"2m"`
	BlockPollInterval time.Duration `envconfig:"BLOCK_POLL_INTERVAL" default:"0s"`
}

// Error reports a missing or malformed setting. Binaries treat it as fatal
// before accepting any traffic.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Load reads configuration from RWAVAULT_* environment variables falling back
// to defaults. Section validation is left to the caller.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = defaultMaxFileSize
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = defaultWorkerCount
	}
	c.MetadataScheme = strings.TrimSuffix(c.MetadataScheme, "://")
	c.PrivateKey = strings.TrimPrefix(strings.TrimSpace(c.PrivateKey), "0x")
}

// ArchiveEnabled reports whether uploaded documents are kept in object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Endpoint != ""
}

// QueueEnabled reports whether orphaned mints are pushed to the reconcile queue.
func (c *Config) QueueEnabled() bool {
	return c.RedisAddr != ""
}

// StakingEnabled reports whether the api process also runs the stake monitor.
func (c *Config) StakingEnabled() bool {
	return c.StakingContract != ""
}

// ValidateSigner checks the settings needed to mint.
func (c *Config) ValidateSigner() error {
	if err := c.validateChain(); err != nil {
		return err
	}
	if c.NFTContract == "" {
		return &Error{Field: "NFT_CONTRACT", Reason: "required"}
	}
	if c.MintGasLimit == 0 {
		return &Error{Field: "MINT_GAS_LIMIT", Reason: "must be positive"}
	}
	if c.MetadataScheme == "" {
		return &Error{Field: "METADATA_SCHEME", Reason: "required"}
	}
	switch c.DuplicatePolicy {
	case PolicyAllowDuplicate, PolicyRejectDuplicate:
	default:
		return &Error{Field: "DUPLICATE_POLICY", Reason: fmt.Sprintf("unknown policy %q", c.DuplicatePolicy)}
	}
	return nil
}

// ValidateStaking checks the settings needed by the stake monitor.
func (c *Config) ValidateStaking() error {
	if err := c.validateChain(); err != nil {
		return err
	}
	if c.StakingContract == "" {
		return &Error{Field: "STAKING_CONTRACT", Reason: "required"}
	}
	if c.StakeGasLimit == 0 {
		return &Error{Field: "STAKE_GAS_LIMIT", Reason: "must be positive"}
	}
	if c.BlockPollInterval < 0 {
		return &Error{Field: "BLOCK_POLL_INTERVAL", Reason: "must not be negative"}
	}
	return nil
}

// ValidateLedger checks the ledger driver selection.
func (c *Config) ValidateLedger() error {
	switch c.LedgerDriver {
	case LedgerMemory:
		return nil
	case LedgerPostgres:
		if c.DatabaseURL == "" {
			return &Error{Field: "DATABASE_URL", Reason: "required for postgres ledger"}
		}
		return nil
	default:
		return &Error{Field: "LEDGER_DRIVER", Reason: fmt.Sprintf("unknown driver %q", c.LedgerDriver)}
	}
}

// ValidateQueue checks the redis settings the reconcile worker needs.
func (c *Config) ValidateQueue() error {
	if c.RedisAddr == "" {
		return &Error{Field: "REDIS_ADDR", Reason: "required"}
	}
	return nil
}

func (c *Config) validateChain() error {
	if c.RPCURL == "" {
		return &Error{Field: "RPC_URL", Reason: "required"}
	}
	if c.PrivateKey == "" {
		return &Error{Field: "PRIVATE_KEY", Reason: "required"}
	}
	if c.ReceiptTimeout <= 0 {
		return &Error{Field: "RECEIPT_TIMEOUT", Reason: "must be positive"}
	}
	return nil
}
