package rpc

// Query payloads

// QueryPollRequest asks for one poll by its on-ledger identifier.
type QueryPollRequest struct {
	PollID uint64 `json:"pollId"`
}

// QueryPollsRequest pages through the full poll listing.
type QueryPollsRequest struct {
	PageNumber int `json:"pageNumber"`
}

// PollRecord is the authoritative on-ledger poll state. Option labels are
// not part of it: the contract stores tallies positionally and leaves the
// human-readable labels to clients.
type PollRecord struct {
	ID             uint64   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	MembershipRoot string   `json:"membershipRoot"` // opaque commitment, hex
	MaxOptions     uint32   `json:"maxOptions"`
	Creator        string   `json:"creator"`
	IsActive       bool     `json:"isActive"`
	TotalVotes     uint64   `json:"totalVotes"`
	VoteTallies    []uint64 `json:"voteTallies"`
	CreatedAt      int64    `json:"createdAt"` // unix ms, 0 when unset
	EndsAt         int64    `json:"endsAt"`    // unix ms, 0 when unset
}

// ChainInfo identifies the remote chain and its contract revision; cached
// records are stamped with it so stale provenance is detectable.
type ChainInfo struct {
	ChainName   string `json:"chainName"`
	ChainID     string `json:"chainId"`
	SpecVersion uint32 `json:"specVersion"`
}
