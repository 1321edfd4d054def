package types

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tally-network/pollsync/pkg/reconcile"
	"github.com/tally-network/pollsync/pkg/redis"
	"github.com/tally-network/pollsync/pkg/resolve"
	"github.com/tally-network/pollsync/pkg/rpc"
	"github.com/tally-network/pollsync/pkg/store"
	"github.com/tally-network/pollsync/pkg/watch"
	"go.uber.org/zap"
)

// refreshTimeout bounds the cache refresh triggered by watcher callbacks.
// Callbacks outlive their watch on purpose: an in-flight refresh is allowed
// to finish even after the watch was cancelled.
const refreshTimeout = 25 * time.Second

// ErrReadOnly is returned by submitting operations when no signer is
// configured.
var ErrReadOnly = errors.New("no signer configured, submissions are disabled")

// Service is the sync engine behind both the daemon and the CLI: it owns
// the ledger client, the local cache, the merger/resolver pair and the set
// of in-flight confirmation watches.
type Service struct {
	Client rpc.Client
	Store  store.Store
	Events *redis.Client
	Signer rpc.Signer
	Logger *zap.Logger

	merger   *reconcile.Merger
	resolver *resolve.Resolver
	clock    watch.Clock
	watchCfg watch.Config
	watchers *xsync.MapOf[string, *watch.Watcher]

	chainMu   sync.Mutex
	chainInfo *store.ChainMetadata
}

// ServiceOpts carries the Service dependencies. Zero values get defaults;
// Events and Signer are optional (nil disables notifications respectively
// submissions).
type ServiceOpts struct {
	Client rpc.Client
	Store  store.Store
	Events *redis.Client
	Signer rpc.Signer
	Clock  watch.Clock
	Watch  watch.Config
	Schema resolve.EventSchema
	Logger *zap.Logger
}

func NewService(o ServiceOpts) *Service {
	if o.Clock == nil {
		o.Clock = watch.SystemClock{}
	}
	if len(o.Schema.Events) == 0 {
		o.Schema = resolve.DefaultSchema()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Service{
		Client:   o.Client,
		Store:    o.Store,
		Events:   o.Events,
		Signer:   o.Signer,
		Logger:   o.Logger,
		merger:   reconcile.NewMerger(o.Client, o.Store, o.Logger),
		resolver: resolve.New(o.Client, o.Schema, o.Logger),
		clock:    o.Clock,
		watchCfg: o.Watch,
		watchers: xsync.NewMapOf[string, *watch.Watcher](),
	}
}

// NewPoll is a creation request as accepted from the API and the CLI.
type NewPoll struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	OptionNames    []string `json:"options"`
	Duration       uint64   `json:"duration"`
	MembershipRoot string   `json:"membershipRoot"`
}

// PendingCreation carries the submission-side metadata that only this
// client knows; it seeds the cache row once the new poll id resolves.
type PendingCreation struct {
	Title       string
	Description string
	OptionNames []string
	MaxOptions  uint32
	Duration    uint64
}

// CreationResult reports a finalized creation. PollID is 0 when the
// identifier could not be resolved; the poll still exists on the ledger and
// shows up on the next full sync.
type CreationResult struct {
	TxHash     string `json:"txHash"`
	PollID     uint64 `json:"pollId"`
	ResolvedBy string `json:"resolvedBy,omitempty"`
	WatchID    string `json:"watchId,omitempty"`
}

// VoteResult reports a finalized vote.
type VoteResult struct {
	TxHash string `json:"txHash"`
	PollID uint64 `json:"pollId"`
	Option uint32 `json:"option"`
}

// WatchStatus is one row of the active-watch listing.
type WatchStatus struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
}

type createPollArgs struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	MaxOptions     uint32 `json:"maxOptions"`
	Duration       uint64 `json:"duration"`
	MembershipRoot string `json:"membershipRoot,omitempty"`
}

type voteArgs struct {
	PollID uint64 `json:"pollId"`
	Option uint32 `json:"option"`
}

// ListMergedPolls reconciles every poll the ledger reports. With
// includeStale, cached rows the ledger could not vouch for in this pass are
// appended as degraded views: rows above the confirmed count and rows whose
// single fetch failed on transport. Rows the ledger authoritatively reports
// as nonexistent are never listed.
func (s *Service) ListMergedPolls(ctx context.Context, includeStale bool) ([]reconcile.MergedView, error) {
	if !includeStale {
		return s.merger.MergeAll(ctx)
	}

	count, err := s.pollCount(ctx)
	if err != nil {
		// The ledger is unreachable outright: serve everything we have,
		// flagged degraded.
		s.Logger.Warn("Ledger unreachable, serving stale cache", zap.Error(err))
		cached, getErr := s.Store.GetAll(ctx)
		if getErr != nil {
			return nil, getErr
		}
		views := make([]reconcile.MergedView, 0, len(cached))
		for _, rec := range cached {
			views = append(views, reconcile.BuildDegraded(rec))
		}
		return views, nil
	}

	views := make([]reconcile.MergedView, 0, count)
	merged := make(map[uint64]bool, count)
	stale := make(map[uint64]bool)
	for id := uint64(1); id <= count; id++ {
		view, err := s.merger.Merge(ctx, id)
		switch {
		case err == nil:
			views = append(views, *view)
			merged[id] = true
		case errors.Is(err, rpc.ErrPollNotFound):
			// Authoritative miss: drop it, stale or not.
		default:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			stale[id] = true
		}
	}

	cached, err := s.Store.GetAll(ctx)
	if err != nil {
		s.Logger.Warn("Cache listing failed, returning remote views only", zap.Error(err))
		return views, nil
	}
	for _, rec := range cached {
		if merged[rec.PollID] {
			continue
		}
		if rec.PollID > count || stale[rec.PollID] {
			views = append(views, reconcile.BuildDegraded(rec))
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].PollID < views[j].PollID })
	return views, nil
}

// GetPoll reconciles a single poll. rpc.ErrPollNotFound when the ledger
// does not know the id.
func (s *Service) GetPoll(ctx context.Context, pollID uint64) (*reconcile.MergedView, error) {
	return s.merger.Merge(ctx, pollID)
}

// CreatePoll submits a create_poll call, waits for finality, resolves the
// new identifier into a cache row and starts a confirmation watch that
// re-syncs the cache once the ledger's counter reflects the creation.
func (s *Service) CreatePoll(ctx context.Context, req NewPoll) (*CreationResult, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("title is required")
	}
	if len(req.OptionNames) < 2 {
		return nil, errors.New("a poll needs at least two options")
	}

	sub, err := s.signedRequest(rpc.MethodCreatePoll, createPollArgs{
		Title:          req.Title,
		Description:    req.Description,
		MaxOptions:     uint32(len(req.OptionNames)),
		Duration:       req.Duration,
		MembershipRoot: req.MembershipRoot,
	})
	if err != nil {
		return nil, err
	}

	hash, updates, err := s.Client.SubmitAndWatch(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("create poll: %w", err)
	}
	final, receipt := awaitTerminal(updates)
	if err := terminalErr("create poll", final); err != nil {
		return nil, err
	}

	pending := &PendingCreation{
		Title:       req.Title,
		Description: req.Description,
		OptionNames: req.OptionNames,
		MaxOptions:  uint32(len(req.OptionNames)),
		Duration:    req.Duration,
	}
	id, source := s.ResolveAndCache(ctx, receipt, pending)

	watchID, _ := s.WatchCreation(func() {
		s.backgroundRefresh("creation confirmed")
	})

	result := &CreationResult{TxHash: hash, PollID: id, WatchID: watchID}
	if id > 0 {
		result.ResolvedBy = source.String()
	}
	return result, nil
}

// Vote submits a vote for one option and, once finalized, re-merges the
// poll so the cached tallies catch up. Votes do not move the aggregate poll
// counter, so no confirmation watch is started.
func (s *Service) Vote(ctx context.Context, pollID uint64, option uint32) (*VoteResult, error) {
	if pollID == 0 {
		return nil, errors.New("poll id is required")
	}

	sub, err := s.signedRequest(rpc.MethodVote, voteArgs{PollID: pollID, Option: option})
	if err != nil {
		return nil, err
	}

	hash, updates, err := s.Client.SubmitAndWatch(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("vote on poll %d: %w", pollID, err)
	}
	final, _ := awaitTerminal(updates)
	if err := terminalErr(fmt.Sprintf("vote on poll %d", pollID), final); err != nil {
		return nil, err
	}

	if _, err := s.merger.Merge(ctx, pollID); err != nil {
		s.Logger.Warn("Post-vote refresh failed, tallies catch up on next sync",
			zap.Uint64("pollId", pollID),
			zap.Error(err))
	}
	s.publish(ctx, redis.Event{Type: redis.EventVoteCast, PollID: pollID})

	return &VoteResult{TxHash: hash, PollID: pollID, Option: option}, nil
}

// ResolveAndCache resolves the new poll's identifier from the receipt and,
// when it resolves, persists a fresh cache row seeded with the pending
// submission metadata. Returns 0 and skips the row when resolution fails;
// the creation itself already succeeded at the ledger.
func (s *Service) ResolveAndCache(ctx context.Context, receipt *rpc.TxReceipt, pending *PendingCreation) (uint64, resolve.Source) {
	id, source := s.resolver.Resolve(ctx, receipt)
	if id == 0 {
		s.Logger.Warn("Could not resolve poll id from receipt, skipping cache row")
		return 0, source
	}

	rec := &store.CacheRecord{
		PollID:      id,
		OptionNames: []string{},
		LastSynced:  time.Now().UnixMilli(),
	}
	if pending != nil {
		rec.Title = pending.Title
		rec.Description = pending.Description
		if pending.OptionNames != nil {
			rec.OptionNames = append([]string(nil), pending.OptionNames...)
		}
		rec.MaxOptions = pending.MaxOptions
		rec.Duration = pending.Duration
	}
	if receipt != nil {
		rec.BlockNumber = receipt.BlockNumber
		rec.BlockHash = receipt.BlockHash
		rec.TransactionHash = receipt.TxHash
	}
	rec.ChainMetadata = s.chainMetadata(ctx)

	if err := s.Store.Put(ctx, rec); err != nil {
		s.Logger.Warn("Failed to persist creation cache row",
			zap.Uint64("pollId", id),
			zap.Error(err))
	}
	s.publish(ctx, redis.Event{Type: redis.EventPollCreated, PollID: id})

	s.Logger.Info("Resolved new poll",
		zap.Uint64("pollId", id),
		zap.String("source", source.String()))
	return id, source
}

// WatchCreation starts a confirmation watch and registers it under a fresh
// id. The returned cancel stops the watch and unregisters it; a watch that
// confirms on its own unregisters itself.
func (s *Service) WatchCreation(onConfirmed func()) (string, func()) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := s.watchCfg
	cfg.OnConfirmed = func() {
		if onConfirmed != nil {
			onConfirmed()
		}
		s.watchers.Delete(id)
		cancel()
	}
	cfg.OnKeepFresh = func() {
		s.backgroundRefresh("keep-fresh")
	}

	w := watch.New(s.Client, cfg, s.clock, s.Logger)
	s.watchers.Store(id, w)
	w.Start(ctx)

	return id, func() {
		cancel()
		w.Stop()
		s.watchers.Delete(id)
	}
}

// ActiveWatches lists the registered confirmation watches.
func (s *Service) ActiveWatches() []WatchStatus {
	out := []WatchStatus{}
	s.watchers.Range(func(id string, w *watch.Watcher) bool {
		out = append(out, WatchStatus{ID: id, State: w.State().String(), Attempts: w.Attempts()})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Export snapshots the raw remote records without touching the cache.
func (s *Service) Export(ctx context.Context) ([]rpc.PollRecord, error) {
	count, err := s.pollCount(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []rpc.PollRecord{}, nil
	}
	return s.Client.PollsRange(ctx, 1, count)
}

// Refresh runs one full reconciliation pass and announces it.
func (s *Service) Refresh(ctx context.Context) error {
	views, err := s.merger.MergeAll(ctx)
	if err != nil {
		return err
	}
	s.Logger.Debug("Cache refreshed", zap.Int("polls", len(views)))
	s.publish(ctx, redis.Event{Type: redis.EventPollsRefreshed})
	return nil
}

// Shutdown stops and unregisters every in-flight watch.
func (s *Service) Shutdown() {
	s.watchers.Range(func(id string, w *watch.Watcher) bool {
		w.Stop()
		s.watchers.Delete(id)
		return true
	})
}

// Close releases the cache store and the notification client.
func (s *Service) Close() error {
	var errs []error
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.Events != nil {
		errs = append(errs, s.Events.Close())
	}
	return errors.Join(errs...)
}

func (s *Service) pollCount(ctx context.Context) (uint64, error) {
	res, err := s.Client.PollCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("query poll count: %w", err)
	}
	count, err := res.Decode()
	if err != nil {
		return 0, fmt.Errorf("decode poll count: %w", err)
	}
	return count, nil
}

// chainMetadata fetches the chain identity once and caches it; provenance
// stamping tolerates it being unavailable.
func (s *Service) chainMetadata(ctx context.Context) *store.ChainMetadata {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()
	if s.chainInfo != nil {
		return s.chainInfo
	}
	info, err := s.Client.ChainInfo(ctx)
	if err != nil {
		s.Logger.Debug("Chain info unavailable", zap.Error(err))
		return nil
	}
	s.chainInfo = &store.ChainMetadata{
		ChainName:   info.ChainName,
		ChainID:     info.ChainID,
		SpecVersion: info.SpecVersion,
	}
	return s.chainInfo
}

func (s *Service) signedRequest(method string, args any) (rpc.SubmitRequest, error) {
	if s.Signer == nil {
		return rpc.SubmitRequest{}, ErrReadOnly
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return rpc.SubmitRequest{}, fmt.Errorf("encode %s args: %w", method, err)
	}
	// The signed payload is the method name and the canonical args bytes.
	sig, err := s.Signer.Sign(append([]byte(method+":"), raw...))
	if err != nil {
		return rpc.SubmitRequest{}, fmt.Errorf("sign %s: %w", method, err)
	}
	return rpc.SubmitRequest{
		Method:    method,
		Args:      raw,
		Origin:    s.Signer.Address(),
		Signature: hex.EncodeToString(sig),
	}, nil
}

// backgroundRefresh runs Refresh on a bounded background context, for
// callers that outlive request scope (watcher callbacks).
func (s *Service) backgroundRefresh(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := s.Refresh(ctx); err != nil {
		s.Logger.Warn("Cache refresh failed",
			zap.String("trigger", trigger),
			zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, ev redis.Event) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(ctx, ev)
}

// awaitTerminal drains the status stream, keeping the last status and the
// richest receipt seen.
func awaitTerminal(updates <-chan rpc.TxStatus) (rpc.TxStatus, *rpc.TxReceipt) {
	var last rpc.TxStatus
	var receipt *rpc.TxReceipt
	for status := range updates {
		last = status
		if status.Receipt != nil {
			receipt = status.Receipt
		}
	}
	return last, receipt
}

func terminalErr(op string, final rpc.TxStatus) error {
	switch {
	case final.State == rpc.TxFailed && final.Failure != nil:
		return fmt.Errorf("%s: %w", op, final.Failure)
	case final.State == rpc.TxFailed:
		return fmt.Errorf("%s: call failed", op)
	case !final.Terminal():
		return fmt.Errorf("%s: status stream ended before finality", op)
	}
	return nil
}
