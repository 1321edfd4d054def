package reconcile

import (
	"github.com/tally-network/pollsync/pkg/rpc"
	"github.com/tally-network/pollsync/pkg/store"
)

// MergedView is the per-request combination of authoritative remote fields
// and locally cached supplementary fields. It is derived, never persisted.
// Remote fields always win; optionNames, duration and provenance exist only
// locally. IsActive and TotalVotes are pointers so a degraded view can leave
// live vote state unset instead of inventing it.
type MergedView struct {
	PollID          uint64               `json:"pollId"`
	Title           string               `json:"title"`
	Description     string               `json:"description,omitempty"`
	MembershipRoot  string               `json:"membershipRoot,omitempty"`
	MaxOptions      uint32               `json:"maxOptions"`
	Creator         string               `json:"creator,omitempty"`
	IsActive        *bool                `json:"isActive,omitempty"`
	TotalVotes      *uint64              `json:"totalVotes,omitempty"`
	VoteTallies     []uint64             `json:"voteTallies,omitempty"`
	CreatedAt       int64                `json:"createdAt"`
	EndsAt          int64                `json:"endsAt"`
	OptionNames     []string             `json:"optionNames"`
	Duration        uint64               `json:"duration,omitempty"`
	BlockNumber     uint64               `json:"blockNumber,omitempty"`
	BlockHash       string               `json:"blockHash,omitempty"`
	TransactionHash string               `json:"transactionHash,omitempty"`
	ChainMetadata   *store.ChainMetadata `json:"chainMetadata,omitempty"`
	LastSynced      int64                `json:"lastSynced,omitempty"`
	Degraded        bool                 `json:"degraded,omitempty"`
}

// buildView combines a freshly fetched remote record with the local cache
// row (nil when absent). stamp is the merge time in epoch milliseconds.
func buildView(remote *rpc.PollRecord, local *store.CacheRecord, stamp int64) *MergedView {
	active := remote.IsActive
	votes := remote.TotalVotes
	view := &MergedView{
		PollID:         remote.ID,
		Title:          remote.Title,
		Description:    remote.Description,
		MembershipRoot: remote.MembershipRoot,
		MaxOptions:     remote.MaxOptions,
		Creator:        remote.Creator,
		IsActive:       &active,
		TotalVotes:     &votes,
		VoteTallies:    append([]uint64(nil), remote.VoteTallies...),
		CreatedAt:      remote.CreatedAt,
		EndsAt:         remote.EndsAt,
		OptionNames:    []string{},
		LastSynced:     stamp,
	}
	if local != nil {
		if local.OptionNames != nil {
			view.OptionNames = append([]string(nil), local.OptionNames...)
		}
		view.Duration = local.Duration
		view.BlockNumber = local.BlockNumber
		view.BlockHash = local.BlockHash
		view.TransactionHash = local.TransactionHash
		if local.ChainMetadata != nil {
			meta := *local.ChainMetadata
			view.ChainMetadata = &meta
		}
	}
	return view
}

// BuildDegraded projects a cache row into a view for consumers that opted
// into stale rows. Only the mirrored title and description stand in for the
// remote record; vote tallies and activity are never filled in from cache.
func BuildDegraded(local store.CacheRecord) MergedView {
	view := MergedView{
		PollID:          local.PollID,
		Title:           local.Title,
		Description:     local.Description,
		MaxOptions:      local.MaxOptions,
		CreatedAt:       local.CreatedAt,
		EndsAt:          local.EndsAt,
		OptionNames:     []string{},
		Duration:        local.Duration,
		BlockNumber:     local.BlockNumber,
		BlockHash:       local.BlockHash,
		TransactionHash: local.TransactionHash,
		LastSynced:      local.LastSynced,
		Degraded:        true,
	}
	if local.OptionNames != nil {
		view.OptionNames = append([]string(nil), local.OptionNames...)
	}
	if local.ChainMetadata != nil {
		meta := *local.ChainMetadata
		view.ChainMetadata = &meta
	}
	return view
}

// unionRecord is the write-back row: remote-sourced fields plus the
// local-only fields carried over, stamped with the merge time.
func unionRecord(remote *rpc.PollRecord, local *store.CacheRecord, stamp int64) *store.CacheRecord {
	active := remote.IsActive
	votes := remote.TotalVotes
	creator := remote.Creator
	rec := &store.CacheRecord{
		PollID:      remote.ID,
		Title:       remote.Title,
		Description: remote.Description,
		OptionNames: []string{},
		MaxOptions:  remote.MaxOptions,
		CreatedAt:   remote.CreatedAt,
		EndsAt:      remote.EndsAt,
		TotalVotes:  &votes,
		IsActive:    &active,
		Creator:     &creator,
		LastSynced:  stamp,
	}
	if local != nil {
		if local.OptionNames != nil {
			rec.OptionNames = append([]string(nil), local.OptionNames...)
		}
		rec.Duration = local.Duration
		rec.BlockNumber = local.BlockNumber
		rec.BlockHash = local.BlockHash
		rec.TransactionHash = local.TransactionHash
		if local.ChainMetadata != nil {
			meta := *local.ChainMetadata
			rec.ChainMetadata = &meta
		}
	}
	return rec
}
