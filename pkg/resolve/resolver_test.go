package resolve

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tally-network/pollsync/pkg/rpc"
	"go.uber.org/zap"
)

type stubCounter struct {
	res   rpc.QueryResult
	err   error
	calls int
}

func (s *stubCounter) PollCount(ctx context.Context) (rpc.QueryResult, error) {
	s.calls++
	return s.res, s.err
}

func countResult(t *testing.T, body string) rpc.QueryResult {
	t.Helper()
	var res rpc.QueryResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	return res
}

// emittedData builds the wire payload of a contract event: leading byte is
// the event index, next eight bytes the little-endian first argument.
func emittedData(t *testing.T, index byte, arg uint64) json.RawMessage {
	t.Helper()
	raw := make([]byte, 9)
	raw[0] = index
	binary.LittleEndian.PutUint64(raw[1:9], arg)
	b, err := json.Marshal(contractPayload{
		Contract: "0xc0ffee",
		Bytes:    "0x" + hex.EncodeToString(raw),
	})
	require.NoError(t, err)
	return b
}

func newTestResolver(client CountClient) (*Resolver, *time.Duration) {
	slept := new(time.Duration)
	r := New(client, DefaultSchema(), zap.NewNop())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*slept += d
		return nil
	}
	return r, slept
}

func TestResolve_SchemaEvent(t *testing.T) {
	counter := &stubCounter{}
	r, slept := newTestResolver(counter)

	receipt := &rpc.TxReceipt{Events: []rpc.EventRecord{
		{Module: "balances", Name: "Withdraw"},
		{Module: "contracts", Name: "ContractEmitted", Data: emittedData(t, 0, 42)},
	}}

	id, src := r.Resolve(context.Background(), receipt)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, SourceEvent, src)
	assert.Zero(t, counter.calls, "count fallback must not run when the schema hits")
	assert.Zero(t, *slept)
}

func TestResolve_SkipsUndecodableEvents(t *testing.T) {
	r, _ := newTestResolver(&stubCounter{})

	garbage, err := json.Marshal(contractPayload{Contract: "0xc0ffee", Bytes: "0xzz"})
	require.NoError(t, err)

	receipt := &rpc.TxReceipt{Events: []rpc.EventRecord{
		{Module: "contracts", Name: "ContractEmitted", Data: garbage},
		{Module: "contracts", Name: "ContractEmitted", Data: json.RawMessage(`not json`)},
		{Module: "contracts", Name: "ContractEmitted", Data: emittedData(t, 0, 9)},
	}}

	id, src := r.Resolve(context.Background(), receipt)
	assert.Equal(t, uint64(9), id)
	assert.Equal(t, SourceEvent, src)
}

func TestResolve_WrongEventFallsToTopic(t *testing.T) {
	r, _ := newTestResolver(&stubCounter{})

	// Index 1 is VoteCast: decodes fine but is not the created event.
	receipt := &rpc.TxReceipt{Events: []rpc.EventRecord{
		{Module: "contracts", Name: "ContractEmitted", Data: emittedData(t, 1, 42)},
		{Module: "polls", Name: "Created", Topics: []string{"0xsignature-hash", "0x000000000000002a"}},
	}}

	id, src := r.Resolve(context.Background(), receipt)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, SourceTopic, src)
}

func TestResolve_TopicDecimal(t *testing.T) {
	r, _ := newTestResolver(&stubCounter{})

	receipt := &rpc.TxReceipt{Events: []rpc.EventRecord{
		{Module: "polls", Name: "Created", Topics: []string{"sig", "17"}},
	}}

	id, src := r.Resolve(context.Background(), receipt)
	assert.Equal(t, uint64(17), id)
	assert.Equal(t, SourceTopic, src)
}

func TestResolve_CountFallback(t *testing.T) {
	counter := &stubCounter{res: countResult(t, `{"display":{"ok":"7"}}`)}
	r, slept := newTestResolver(counter)

	receipt := &rpc.TxReceipt{Events: []rpc.EventRecord{
		{Module: "system", Name: "ExtrinsicSuccess"},
	}}

	id, src := r.Resolve(context.Background(), receipt)
	assert.Equal(t, uint64(7), id)
	assert.Equal(t, SourceCount, src)
	assert.Equal(t, 1, counter.calls)
	assert.Equal(t, DefaultSettleDelay, *slept, "count read must wait out the settling delay")
}

func TestResolve_NonPositiveCandidatesDiscarded(t *testing.T) {
	counter := &stubCounter{res: countResult(t, `{"display":{"ok":"3"}}`)}
	r, _ := newTestResolver(counter)

	// Schema arg 0 and topic 0x0 are both discarded; the chain continues.
	receipt := &rpc.TxReceipt{Events: []rpc.EventRecord{
		{Module: "contracts", Name: "ContractEmitted", Data: emittedData(t, 0, 0)},
		{Module: "polls", Name: "Created", Topics: []string{"sig", "0x0"}},
	}}

	id, src := r.Resolve(context.Background(), receipt)
	assert.Equal(t, uint64(3), id)
	assert.Equal(t, SourceCount, src)
}

func TestResolve_Exhausted(t *testing.T) {
	tests := []struct {
		name    string
		counter *stubCounter
	}{
		{"count query fails", &stubCounter{err: assert.AnError}},
		{"count undecodable", &stubCounter{res: countResult(t, `{"output":{"err":"boom"}}`)}},
		{"count is zero", &stubCounter{res: countResult(t, `{"output":0}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestResolver(tt.counter)
			id, src := r.Resolve(context.Background(), &rpc.TxReceipt{})
			assert.Zero(t, id)
			assert.Equal(t, SourceNone, src)
		})
	}
}

func TestResolve_NilReceipt(t *testing.T) {
	counter := &stubCounter{res: countResult(t, `{"display":{"ok":"7"}}`)}
	r, _ := newTestResolver(counter)

	id, src := r.Resolve(context.Background(), nil)
	assert.Zero(t, id)
	assert.Equal(t, SourceNone, src)
	assert.Zero(t, counter.calls)
}

func TestResolve_Idempotent(t *testing.T) {
	counter := &stubCounter{res: countResult(t, `{"display":{"ok":"5"}}`)}
	r, _ := newTestResolver(counter)

	receipt := &rpc.TxReceipt{Events: []rpc.EventRecord{
		{Module: "contracts", Name: "ContractEmitted", Data: emittedData(t, 0, 42)},
	}}

	for i := 0; i < 3; i++ {
		id, src := r.Resolve(context.Background(), receipt)
		assert.Equal(t, uint64(42), id)
		assert.Equal(t, SourceEvent, src)
	}

	bare := &rpc.TxReceipt{}
	for i := 0; i < 3; i++ {
		id, src := r.Resolve(context.Background(), bare)
		assert.Equal(t, uint64(5), id)
		assert.Equal(t, SourceCount, src)
	}
}

func TestResolve_CancelledDuringSettle(t *testing.T) {
	counter := &stubCounter{res: countResult(t, `{"display":{"ok":"7"}}`)}
	r := New(counter, DefaultSchema(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, src := r.Resolve(ctx, &rpc.TxReceipt{})
	assert.Zero(t, id)
	assert.Equal(t, SourceNone, src)
	assert.Zero(t, counter.calls, "cancelled settle must skip the count read")
}

func TestSchemaDecode_Errors(t *testing.T) {
	schema := DefaultSchema()

	tests := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"empty bytes", `{"contract":"0xc0ffee","bytes":"0x"}`},
		{"index outside schema", `{"contract":"0xc0ffee","bytes":"0xff"}`},
		{"payload too short for args", `{"contract":"0xc0ffee","bytes":"0x0001"}`},
		{"odd hex", `{"contract":"0xc0ffee","bytes":"0x012"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := schema.decode(json.RawMessage(tt.data))
			require.Error(t, err)
		})
	}
}
