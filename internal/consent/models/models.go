package models

import (
	"encoding/json"
	"time"
)

// Record is the single persisted consent entity. Essential is constant and is
// never offered as a choice; Analytics and Marketing are the two revocable
// flags a visitor can toggle. Timestamp is epoch milliseconds of the decision.
type Record struct {
	Essential bool
	Analytics bool
	Marketing bool
	Timestamp int64
}

// NewRecord creates a Record for a fresh decision. Essential is forced true.
func NewRecord(analytics, marketing bool, now time.Time) Record {
	return Record{
		Essential: true,
		Analytics: analytics,
		Marketing: marketing,
		Timestamp: now.UnixMilli(),
	}
}

// Granted reports whether the record grants the given category.
func (r Record) Granted(c Category) bool {
	switch c {
	case CategoryEssential:
		return true
	case CategoryAnalytics:
		return r.Analytics
	case CategoryMarketing:
		return r.Marketing
	default:
		return false
	}
}

// persistedRecord is the canonical wire shape:
// {"essential":true,"analytics":b,"marketing":b,"ts":n}
// Pointer fields let the decoder distinguish absent from false.
type persistedRecord struct {
	Essential *bool  `json:"essential"`
	Analytics *bool  `json:"analytics"`
	Marketing *bool  `json:"marketing"`
	TS        *int64 `json:"ts"`
}

// Encode marshals the record into its canonical wire shape.
func Encode(r Record) []byte {
	essential := true
	raw, err := json.Marshal(persistedRecord{
		Essential: &essential,
		Analytics: &r.Analytics,
		Marketing: &r.Marketing,
		TS:        &r.Timestamp,
	})
	if err != nil {
		// Marshalling a struct of bools and an int64 cannot fail.
		return nil
	}
	return raw
}

// Decode strictly parses a persisted record. Any shape mismatch (malformed
// JSON, missing field, essential not true) yields nil rather than a partial
// record, so a corrupt store behaves exactly like a first visit.
func Decode(raw []byte) *Record {
	var p persistedRecord
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	if p.Essential == nil || !*p.Essential {
		return nil
	}
	if p.Analytics == nil || p.Marketing == nil || p.TS == nil {
		return nil
	}
	return &Record{
		Essential: true,
		Analytics: *p.Analytics,
		Marketing: *p.Marketing,
		Timestamp: *p.TS,
	}
}

// legacyRecord is the deprecated wire shape, read once during migration and
// never written: {"analytics":b?,"updatedAt":n?}.
type legacyRecord struct {
	Analytics *bool  `json:"analytics"`
	UpdatedAt *int64 `json:"updatedAt"`
}

// DecodeLegacy derives a canonical record from the deprecated shape. The
// analytics flag carries over (absent means false), marketing defaults to
// false, and the timestamp is the migration time, not the legacy one.
// Malformed legacy data yields nil.
func DecodeLegacy(raw []byte, now time.Time) *Record {
	var l legacyRecord
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil
	}
	analytics := false
	if l.Analytics != nil {
		analytics = *l.Analytics
	}
	rec := NewRecord(analytics, false, now)
	return &rec
}
