package store

// ChainMetadata stamps a cache row with the chain it was written against,
// so rows from a different network or contract revision are detectable.
type ChainMetadata struct {
	ChainName   string `json:"chainName,omitempty"`
	ChainID     string `json:"chainId,omitempty"`
	SpecVersion uint32 `json:"specVersion,omitempty"`
}

// CacheRecord is the locally persisted side of a poll: the option labels,
// configured duration, and creation provenance the contract does not store,
// plus last-known mirrors of a few remote fields. Poll id 0 is reserved for
// "creation not yet resolved" and is never persisted.
type CacheRecord struct {
	PollID      uint64 `json:"pollId"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// The ledger stores tallies positionally; the labels live only here.
	// May be shorter than MaxOptions for rows written by older clients.
	OptionNames []string `json:"optionNames"`
	MaxOptions  uint32   `json:"maxOptions,omitempty"`
	Duration    uint64   `json:"duration,omitempty"`  // seconds
	CreatedAt   int64    `json:"createdAt,omitempty"` // unix ms
	EndsAt      int64    `json:"endsAt,omitempty"`    // unix ms

	// Provenance of the creating transaction.
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	BlockHash       string `json:"blockHash,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`

	ChainMetadata *ChainMetadata `json:"chainMetadata,omitempty"`

	// Last-known remote mirrors. Pointers distinguish "never synced".
	TotalVotes *uint64 `json:"totalVotes,omitempty"`
	IsActive   *bool   `json:"isActive,omitempty"`
	Creator    *string `json:"creator,omitempty"`

	LastSynced int64 `json:"lastSynced,omitempty"` // unix ms
}

// Clone returns a deep copy so callers can mutate results without touching
// stored state.
func (r CacheRecord) Clone() CacheRecord {
	out := r
	if r.OptionNames != nil {
		out.OptionNames = append([]string(nil), r.OptionNames...)
	}
	if r.ChainMetadata != nil {
		meta := *r.ChainMetadata
		out.ChainMetadata = &meta
	}
	if r.TotalVotes != nil {
		v := *r.TotalVotes
		out.TotalVotes = &v
	}
	if r.IsActive != nil {
		v := *r.IsActive
		out.IsActive = &v
	}
	if r.Creator != nil {
		v := *r.Creator
		out.Creator = &v
	}
	return out
}
