package rpc

import (
	"encoding/json"
	"fmt"
)

// Transaction lifecycle states delivered on the subscription stream.
const (
	TxBroadcast = "broadcast"
	TxInBlock   = "inBlock"
	TxFinalized = "finalized"
	TxFailed    = "failed"
)

// TxStatus is one update on a submitted transaction's lifecycle. Receipt is
// populated from inBlock onward; Failure only on failed.
type TxStatus struct {
	State   string         `json:"state"`
	Receipt *TxReceipt     `json:"receipt,omitempty"`
	Failure *DispatchError `json:"failure,omitempty"`
}

// Terminal reports whether no further updates follow this status.
func (s TxStatus) Terminal() bool {
	return s.State == TxFinalized || s.State == TxFailed
}

// TxReceipt describes an included transaction and the events it emitted.
type TxReceipt struct {
	TxHash      string        `json:"txHash"`
	BlockNumber uint64        `json:"blockNumber"`
	BlockHash   string        `json:"blockHash"`
	Events      []EventRecord `json:"events"`
}

// EventRecord is one runtime event attached to a receipt. Data stays raw:
// its shape varies by emitting module and runtime revision, so consumers
// decode what they recognize and skip the rest.
type EventRecord struct {
	Module string          `json:"module"`
	Name   string          `json:"name"`
	Data   json.RawMessage `json:"data,omitempty"`
	Topics []string        `json:"topics,omitempty"`
}

// DispatchError is a ledger-side rejection of a submitted call, identified
// by the emitting module and its error reason.
type DispatchError struct {
	Module string `json:"module"`
	Reason string `json:"reason"`
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed: %s.%s: %s", e.Module, e.Reason, e.Classify())
}

// dispatchMessages maps module.reason pairs to user-facing messages.
var dispatchMessages = map[string]string{
	"polls.TooManyOptions":         "option count exceeds the contract maximum",
	"polls.TitleTooLong":           "title exceeds the stored length limit",
	"polls.PollNotFound":           "no poll exists with that identifier",
	"polls.PollClosed":             "voting period has ended",
	"polls.AlreadyVoted":           "this account has already voted",
	"polls.NotMember":              "account is not in the poll's membership set",
	"polls.InvalidOption":          "option index is out of range",
	"balances.InsufficientBalance": "account cannot cover the submission fee",
	"system.CallFiltered":          "call rejected by chain policy",
}

// Classify resolves the rejection into a user-facing message. Unknown
// pairs fall back to the raw reason so nothing is swallowed.
func (e *DispatchError) Classify() string {
	if msg, ok := dispatchMessages[e.Module+"."+e.Reason]; ok {
		return msg
	}
	if e.Reason != "" {
		return e.Reason
	}
	return "call rejected"
}
