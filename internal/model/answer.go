package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// contextHashPrefix versions the captured-context hash format. All current
// hashes use length-prefixed encoding under the "v1:" prefix.
const contextHashPrefix = "v1:"

// CapturedContext is the targeting/category snapshot stamped onto an answer
// at write time. It is the answer's fallback identity once the generated
// question row is gone. Write-once: the storage layer exposes no update path
// for it, and ContentHash makes later tampering detectable.
type CapturedContext struct {
	// BankItemID is set when the generated question still resolved to a bank
	// item at capture time.
	BankItemID *uuid.UUID `json:"bank_item_id,omitempty"`

	Category   Category       `json:"category"`
	Tuple      TargetingTuple `json:"tuple"`
	Priority   int            `json:"priority"`
	SourceTags []string       `json:"source_tags,omitempty"`
}

// ContentHash returns a versioned SHA-256 hex digest over the canonical
// snapshot fields. Each field is written with a 4-byte big-endian length
// prefix so freeform values cannot collide across field boundaries.
func (c CapturedContext) ContentHash() string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	id := ""
	if c.BankItemID != nil {
		id = c.BankItemID.String()
	}
	writeField(id)
	writeField(string(c.Category))
	writeField(c.Tuple.RespondentType)
	writeField(c.Tuple.Commodity)
	writeField(c.Tuple.Country)
	writeField(strconv.Itoa(c.Priority))
	writeField(strconv.Itoa(len(c.SourceTags)))
	for _, tag := range c.SourceTags {
		writeField(tag)
	}
	return contextHashPrefix + hex.EncodeToString(h.Sum(nil))
}

// VerifyHash reports whether stored matches the snapshot's recomputed digest.
func (c CapturedContext) VerifyHash(stored string) bool {
	return stored == c.ContentHash()
}

// AnswerRecord is one captured response. Records are insert-only; nothing
// mutates them after capture.
type AnswerRecord struct {
	ID           uuid.UUID `json:"id"`
	RespondentID uuid.UUID `json:"respondent_id"`

	// QuestionID links to the generated question. It may be nil (never
	// linked) or dangling (question deleted later); reconciliation recovers
	// the true bank item either way.
	QuestionID *uuid.UUID `json:"question_id,omitempty"`

	Context     CapturedContext `json:"context"`
	ContextHash string          `json:"context_hash"`

	Value       string    `json:"value"`
	CollectedAt time.Time `json:"collected_at"`

	// Seq is the global insertion sequence, the stable tiebreak when two
	// answers share a collected-at timestamp.
	Seq int64 `json:"seq"`

	CreatedAt time.Time `json:"created_at"`
}
