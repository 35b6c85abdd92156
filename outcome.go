// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package certify

import (
	"encoding/json"
	"time"

	"github.com/luxfi/geth/common"
)

// Operation identifies the user action that produced an outcome.
type Operation uint8

const (
	OperationIssue Operation = iota + 1
	OperationVerify
)

func (o Operation) String() string {
	switch o {
	case OperationIssue:
		return "issue"
	case OperationVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// Category groups outcomes for presentation.
type Category uint8

const (
	CategorySuccess Category = iota + 1
	CategoryFailure
	CategoryWarning
)

func (c Category) String() string {
	switch c {
	case CategorySuccess:
		return "success"
	case CategoryFailure:
		return "failure"
	case CategoryWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// OutcomeKind is the closed set of results an operation can settle with.
type OutcomeKind uint8

const (
	IssueSucceeded OutcomeKind = iota + 1
	IssueFailed
	VerifyValid
	VerifyInvalid
	VerifyFailed
)

const (
	MessageIssueSucceeded = "✅ Certificate issued successfully!"
	MessageIssueFailed    = "❌ Failed to issue certificate."
	MessageVerifyValid    = "✅ Valid certificate!"
	MessageVerifyInvalid  = "❌ Invalid certificate."
	MessageVerifyFailed   = "⚠️ Error verifying certificate."
)

// Message is the human readable text shown for the outcome.
func (k OutcomeKind) Message() string {
	switch k {
	case IssueSucceeded:
		return MessageIssueSucceeded
	case IssueFailed:
		return MessageIssueFailed
	case VerifyValid:
		return MessageVerifyValid
	case VerifyInvalid:
		return MessageVerifyInvalid
	case VerifyFailed:
		return MessageVerifyFailed
	default:
		return ""
	}
}

func (k OutcomeKind) Category() Category {
	switch k {
	case IssueSucceeded, VerifyValid:
		return CategorySuccess
	case IssueFailed, VerifyInvalid:
		return CategoryFailure
	default:
		return CategoryWarning
	}
}

func (k OutcomeKind) Operation() Operation {
	switch k {
	case IssueSucceeded, IssueFailed:
		return OperationIssue
	default:
		return OperationVerify
	}
}

func (k OutcomeKind) String() string {
	switch k {
	case IssueSucceeded:
		return "issue-succeeded"
	case IssueFailed:
		return "issue-failed"
	case VerifyValid:
		return "verify-valid"
	case VerifyInvalid:
		return "verify-invalid"
	case VerifyFailed:
		return "verify-failed"
	default:
		return "unknown"
	}
}

// Outcome is the settled result of one operation. Seq orders outcomes of the
// same controller: a higher Seq settled later.
type Outcome struct {
	Kind        OutcomeKind
	Seq         uint64
	Certificate string
	// TxHash is set for issue outcomes whose transaction was submitted.
	TxHash    common.Hash
	SettledAt time.Time
}

func (o *Outcome) Operation() Operation {
	return o.Kind.Operation()
}

func (o *Outcome) Message() string {
	return o.Kind.Message()
}

func (o *Outcome) Category() Category {
	return o.Kind.Category()
}

type outcomeJSON struct {
	Operation   string    `json:"operation"`
	Kind        string    `json:"kind"`
	Category    string    `json:"category"`
	Message     string    `json:"message"`
	Seq         uint64    `json:"seq"`
	Certificate string    `json:"certificate"`
	TxHash      string    `json:"tx-hash,omitempty"`
	SettledAt   time.Time `json:"settled-at"`
}

func (o *Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Operation:   o.Operation().String(),
		Kind:        o.Kind.String(),
		Category:    o.Category().String(),
		Message:     o.Message(),
		Seq:         o.Seq,
		Certificate: o.Certificate,
		SettledAt:   o.SettledAt,
	}
	if o.TxHash != (common.Hash{}) {
		out.TxHash = o.TxHash.Hex()
	}
	return json.Marshal(out)
}
