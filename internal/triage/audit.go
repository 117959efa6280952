package triage

import "time"

// AuditLayer tags which decision layer produced an audit entry.
type AuditLayer string

const (
	AuditLayerKeyword  AuditLayer = "keyword"
	AuditLayerClinical AuditLayer = "clinical"
	AuditLayerLLM      AuditLayer = "llm"
	AuditLayerSafety   AuditLayer = "safety"
)

// AuditEntry is a single timestamped record of a layer's contribution to an
// assessment.
type AuditEntry struct {
	Layer     AuditLayer `json:"layer"`
	Step      string     `json:"step"`
	Summary   string     `json:"summary"`
	Timestamp time.Time  `json:"timestamp"`
}

// AuditTrail is an append-only sequence of entries for one assessment.
// Ordering is non-decreasing by timestamp; every layer that executed records
// at least one entry.
type AuditTrail struct {
	entries []AuditEntry
	now     func() time.Time
}

// NewAuditTrail creates an empty trail.
func NewAuditTrail() *AuditTrail {
	return &AuditTrail{now: time.Now}
}

// Record appends an entry for the given layer and step.
func (t *AuditTrail) Record(layer AuditLayer, step, summary string) {
	if t == nil {
		return
	}
	if t.now == nil {
		t.now = time.Now
	}
	t.entries = append(t.entries, AuditEntry{
		Layer:     layer,
		Step:      step,
		Summary:   summary,
		Timestamp: t.now().UTC(),
	})
}

// Entries returns a copy of the recorded entries in append order.
func (t *AuditTrail) Entries() []AuditEntry {
	if t == nil || len(t.entries) == 0 {
		return nil
	}
	out := make([]AuditEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// HasLayer reports whether any entry was recorded for the given layer.
func (t *AuditTrail) HasLayer(layer AuditLayer) bool {
	if t == nil {
		return false
	}
	for _, e := range t.entries {
		if e.Layer == layer {
			return true
		}
	}
	return false
}
