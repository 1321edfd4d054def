// Package resolve derives the ledger-assigned identifier of a freshly
// created poll from its transaction receipt. Receipts are ambiguous: the
// contract event may decode cleanly, may only be recognizable by its topic
// hashes, or may be missing entirely, so resolution walks a prioritized
// strategy chain and reports which source produced the answer.
package resolve

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tally-network/pollsync/pkg/rpc"
	"github.com/tally-network/pollsync/pkg/utils"
	"go.uber.org/zap"
)

// DefaultSettleDelay is how long the count fallback waits before reading
// the aggregate counter, to tolerate propagation lag after inclusion.
const DefaultSettleDelay = 3 * time.Second

// Source tells callers which strategy produced an identifier. Count-derived
// identifiers are provisional: a concurrent creation between submission and
// the settled read would shift the counter.
type Source int

const (
	SourceNone Source = iota
	SourceEvent
	SourceTopic
	SourceCount
)

func (s Source) String() string {
	switch s {
	case SourceEvent:
		return "event"
	case SourceTopic:
		return "topic"
	case SourceCount:
		return "count"
	default:
		return "none"
	}
}

// CountClient is the slice of the rpc client the count fallback needs.
type CountClient interface {
	PollCount(ctx context.Context) (rpc.QueryResult, error)
}

// EventDef describes one contract event, indexed by the leading byte of the
// emitted payload.
type EventDef struct {
	Identifier string
	ArgCount   int
}

// EventSchema describes the contract's emission channel and event layout.
// Created names the event whose first argument is the new poll's id.
type EventSchema struct {
	EmitModule string
	EmitName   string
	Created    string
	Events     []EventDef
}

// DefaultSchema matches the poll contract deployed on the tally chains.
func DefaultSchema() EventSchema {
	return EventSchema{
		EmitModule: "contracts",
		EmitName:   "ContractEmitted",
		Created:    "PollCreated",
		Events: []EventDef{
			{Identifier: "PollCreated", ArgCount: 1},
			{Identifier: "VoteCast", ArgCount: 2},
			{Identifier: "PollClosed", ArgCount: 1},
		},
	}
}

// contractPayload is the wire form of an emission-channel event record.
type contractPayload struct {
	Contract string `json:"contract"`
	Bytes    string `json:"bytes"`
}

// decode interprets an emitted payload against the schema. The leading byte
// selects the event; the first argument, when the event carries one, is a
// little-endian u64 immediately after it.
func (s EventSchema) decode(data json.RawMessage) (EventDef, uint64, error) {
	var payload contractPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return EventDef{}, 0, fmt.Errorf("decode contract payload: %w", err)
	}
	raw, err := hexBytes(payload.Bytes)
	if err != nil {
		return EventDef{}, 0, fmt.Errorf("decode contract event bytes: %w", err)
	}
	if len(raw) == 0 {
		return EventDef{}, 0, errors.New("empty contract event bytes")
	}
	idx := int(raw[0])
	if idx >= len(s.Events) {
		return EventDef{}, 0, fmt.Errorf("event index %d outside schema", idx)
	}
	def := s.Events[idx]
	var arg uint64
	if def.ArgCount >= 1 {
		if len(raw) < 9 {
			return EventDef{}, 0, fmt.Errorf("event %s: payload too short for arguments", def.Identifier)
		}
		arg = binary.LittleEndian.Uint64(raw[1:9])
	}
	return def, arg, nil
}

func hexBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// Resolver runs the strategy chain. Safe for concurrent use.
type Resolver struct {
	client CountClient
	schema EventSchema
	settle time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

func New(client CountClient, schema EventSchema, logger *zap.Logger) *Resolver {
	return &Resolver{
		client: client,
		schema: schema,
		settle: DefaultSettleDelay,
		sleep:  sleepContext,
		logger: logger,
	}
}

// Resolve walks the strategy chain over the receipt's events and returns the
// first positive identifier, tagged with its source. (0, SourceNone) means
// the identifier could not be determined; the write itself is still good.
// Resolve never fails on an undecodable event, it logs and moves on.
func (r *Resolver) Resolve(ctx context.Context, receipt *rpc.TxReceipt) (uint64, Source) {
	if receipt == nil {
		return 0, SourceNone
	}
	if id, ok := r.fromSchema(receipt); ok {
		return id, SourceEvent
	}
	if id, ok := r.fromTopics(receipt); ok {
		return id, SourceTopic
	}
	if id, ok := r.fromCount(ctx); ok {
		r.logger.Warn("Resolved poll id from aggregate count, treat as provisional",
			zap.Uint64("pollId", id))
		return id, SourceCount
	}
	return 0, SourceNone
}

// fromSchema decodes emission-channel events against the schema and takes
// the first argument of the created event.
func (r *Resolver) fromSchema(receipt *rpc.TxReceipt) (uint64, bool) {
	for _, ev := range receipt.Events {
		if ev.Module != r.schema.EmitModule || ev.Name != r.schema.EmitName {
			continue
		}
		def, arg, err := r.schema.decode(ev.Data)
		if err != nil {
			r.logger.Debug("Skipping undecodable contract event",
				zap.String("module", ev.Module),
				zap.Error(err))
			continue
		}
		if def.Identifier != r.schema.Created || def.ArgCount < 1 {
			continue
		}
		if arg > 0 {
			return arg, true
		}
	}
	return 0, false
}

// fromTopics reads the second topic hash as the identifier. Topic 0 is
// always the event-signature hash.
func (r *Resolver) fromTopics(receipt *rpc.TxReceipt) (uint64, bool) {
	for _, ev := range receipt.Events {
		if len(ev.Topics) < 2 {
			continue
		}
		id, err := utils.ParseQuantity(ev.Topics[1])
		if err != nil {
			r.logger.Debug("Skipping unparsable topic",
				zap.String("topic", ev.Topics[1]),
				zap.Error(err))
			continue
		}
		if id > 0 {
			return id, true
		}
	}
	return 0, false
}

// fromCount reads the aggregate counter after the settling delay and uses
// it directly as the identifier.
func (r *Resolver) fromCount(ctx context.Context) (uint64, bool) {
	if err := r.sleep(ctx, r.settle); err != nil {
		return 0, false
	}
	res, err := r.client.PollCount(ctx)
	if err != nil {
		r.logger.Warn("Aggregate count query failed during identifier resolution", zap.Error(err))
		return 0, false
	}
	count, err := res.Decode()
	if err != nil {
		r.logger.Warn("Aggregate count undecodable during identifier resolution", zap.Error(err))
		return 0, false
	}
	if count == 0 {
		return 0, false
	}
	return count, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
