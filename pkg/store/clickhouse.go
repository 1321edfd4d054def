package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/tally-network/pollsync/pkg/retry"
	"go.uber.org/zap"
)

// ClickHouseStore persists the cache in a single ReplacingMergeTree table.
// The engine collapses rows by poll_id keeping the highest last_synced_ms,
// which is exactly the last-writer-wins upsert the cache contract asks for;
// reads use FINAL so callers never see a pre-merge duplicate.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *zap.Logger
}

const pollCacheSchema = `
CREATE TABLE IF NOT EXISTS poll_cache (
	poll_id        UInt64,
	title          String,
	description    String,
	option_names   Array(String),
	max_options    UInt32,
	duration_secs  UInt64,
	created_at_ms  Int64,
	ends_at_ms     Int64,
	block_number   UInt64,
	block_hash     String,
	tx_hash        String,
	chain_name     String,
	chain_id       String,
	spec_version   UInt32,
	total_votes    Nullable(UInt64),
	is_active      Nullable(Bool),
	creator        Nullable(String),
	last_synced_ms Int64
) ENGINE = ReplacingMergeTree(last_synced_ms)
ORDER BY poll_id
`

const pollCacheColumns = `poll_id, title, description, option_names, max_options, duration_secs,
	created_at_ms, ends_at_ms, block_number, block_hash, tx_hash,
	chain_name, chain_id, spec_version, total_votes, is_active, creator, last_synced_ms`

type rowPoll struct {
	PollID       uint64   `ch:"poll_id"`
	Title        string   `ch:"title"`
	Description  string   `ch:"description"`
	OptionNames  []string `ch:"option_names"`
	MaxOptions   uint32   `ch:"max_options"`
	DurationSecs uint64   `ch:"duration_secs"`
	CreatedAtMs  int64    `ch:"created_at_ms"`
	EndsAtMs     int64    `ch:"ends_at_ms"`
	BlockNumber  uint64   `ch:"block_number"`
	BlockHash    string   `ch:"block_hash"`
	TxHash       string   `ch:"tx_hash"`
	ChainName    string   `ch:"chain_name"`
	ChainID      string   `ch:"chain_id"`
	SpecVersion  uint32   `ch:"spec_version"`
	TotalVotes   *uint64  `ch:"total_votes"`
	IsActive     *bool    `ch:"is_active"`
	Creator      *string  `ch:"creator"`
	LastSyncedMs int64    `ch:"last_synced_ms"`
}

// NewClickHouseStore connects to the cluster named by dsn, verifies the
// connection, and ensures the cache table exists.
func NewClickHouseStore(ctx context.Context, logger *zap.Logger, dsn string) (*ClickHouseStore, error) {
	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	options.DialTimeout = 30 * time.Second
	if options.Compression == nil {
		options.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}

	var conn driver.Conn
	err = retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		c, openErr := clickhouse.Open(options)
		if openErr != nil {
			return fmt.Errorf("open clickhouse connection: %w", openErr)
		}
		if pingErr := c.Ping(ctx); pingErr != nil {
			return fmt.Errorf("ping clickhouse: %w", pingErr)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s := &ClickHouseStore{conn: conn, logger: logger}
	if err := s.conn.Exec(ctx, pollCacheSchema); err != nil {
		return nil, fmt.Errorf("ensure poll_cache table: %w", err)
	}

	logger.Info("Connected to ClickHouse cache", zap.Strings("addr", options.Addr))
	return s, nil
}

func (s *ClickHouseStore) Get(ctx context.Context, pollID uint64) (*CacheRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM poll_cache FINAL WHERE poll_id = ?", pollCacheColumns)
	var rows []rowPoll
	if err := s.conn.Select(ctx, &rows, query, pollID); err != nil {
		return nil, fmt.Errorf("select poll %d: %w", pollID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("poll %d: %w", pollID, ErrNotFound)
	}
	rec := fromRow(rows[0])
	return &rec, nil
}

func (s *ClickHouseStore) GetAll(ctx context.Context) ([]CacheRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM poll_cache FINAL ORDER BY created_at_ms, poll_id", pollCacheColumns)
	var rows []rowPoll
	if err := s.conn.Select(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select poll cache: %w", err)
	}
	out := make([]CacheRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

func (s *ClickHouseStore) Put(ctx context.Context, rec *CacheRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO poll_cache")
	if err != nil {
		return fmt.Errorf("prepare poll_cache insert: %w", err)
	}
	row := toRow(rec)
	if err := batch.AppendStruct(&row); err != nil {
		return fmt.Errorf("append poll %d: %w", rec.PollID, err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert poll %d: %w", rec.PollID, err)
	}
	return nil
}

func (s *ClickHouseStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

func toRow(rec *CacheRecord) rowPoll {
	row := rowPoll{
		PollID:       rec.PollID,
		Title:        rec.Title,
		Description:  rec.Description,
		OptionNames:  rec.OptionNames,
		MaxOptions:   rec.MaxOptions,
		DurationSecs: rec.Duration,
		CreatedAtMs:  rec.CreatedAt,
		EndsAtMs:     rec.EndsAt,
		BlockNumber:  rec.BlockNumber,
		BlockHash:    rec.BlockHash,
		TxHash:       rec.TransactionHash,
		TotalVotes:   rec.TotalVotes,
		IsActive:     rec.IsActive,
		Creator:      rec.Creator,
		LastSyncedMs: rec.LastSynced,
	}
	if row.OptionNames == nil {
		row.OptionNames = []string{}
	}
	if rec.ChainMetadata != nil {
		row.ChainName = rec.ChainMetadata.ChainName
		row.ChainID = rec.ChainMetadata.ChainID
		row.SpecVersion = rec.ChainMetadata.SpecVersion
	}
	return row
}

func fromRow(row rowPoll) CacheRecord {
	rec := CacheRecord{
		PollID:          row.PollID,
		Title:           row.Title,
		Description:     row.Description,
		OptionNames:     row.OptionNames,
		MaxOptions:      row.MaxOptions,
		Duration:        row.DurationSecs,
		CreatedAt:       row.CreatedAtMs,
		EndsAt:          row.EndsAtMs,
		BlockNumber:     row.BlockNumber,
		BlockHash:       row.BlockHash,
		TransactionHash: row.TxHash,
		TotalVotes:      row.TotalVotes,
		IsActive:        row.IsActive,
		Creator:         row.Creator,
		LastSynced:      row.LastSyncedMs,
	}
	if row.ChainName != "" || row.ChainID != "" || row.SpecVersion != 0 {
		rec.ChainMetadata = &ChainMetadata{
			ChainName:   row.ChainName,
			ChainID:     row.ChainID,
			SpecVersion: row.SpecVersion,
		}
	}
	return rec
}
