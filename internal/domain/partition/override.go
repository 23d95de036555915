package partition

import "strings"

// OverrideLookup resolves the override supplied for an archive id.
// ok is false when no override exists, which is different from a blank override.
type OverrideLookup interface {
	Lookup(archiveID string) (override string, ok bool)
}

// OverrideStats summarises how an override feed was indexed
type OverrideStats struct {
	Records    int64 // records offered to the builder
	Keys       int64 // distinct archive ids kept
	Duplicates int64 // records discarded because their key was already present
	BlankKeys  int64 // records dropped because their archive id was blank
}

// OverrideIndex maps archive ids to their override value. It is read-only once
// built and safe for concurrent lookups.
type OverrideIndex struct {
	values map[string]string
	stats  OverrideStats
}

// Lookup implements OverrideLookup
func (idx *OverrideIndex) Lookup(archiveID string) (string, bool) {
	if idx == nil {
		return "", false
	}
	v, ok := idx.values[archiveID]
	return v, ok
}

// Len returns the number of archive ids with an override
func (idx *OverrideIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.values)
}

// Stats returns the build statistics
func (idx *OverrideIndex) Stats() OverrideStats {
	if idx == nil {
		return OverrideStats{}
	}
	return idx.stats
}

type overrideEntry struct {
	value  string
	source string
	line   int
}

// before reports whether a record at (source, line) precedes the entry in canonical feed order
func (e overrideEntry) before(source string, line int) bool {
	if c := strings.Compare(source, e.source); c != 0 {
		return c < 0
	}
	return line < e.line
}

// OverrideIndexBuilder deduplicates override records by archive id.
//
// When a key occurs more than once the record that comes first in canonical
// feed order wins: ordered by Source, then Line. The result does not depend
// on the order records are added in. Not safe for concurrent use.
type OverrideIndexBuilder struct {
	entries map[string]overrideEntry
	stats   OverrideStats
}

// NewOverrideIndexBuilder creates an empty builder
func NewOverrideIndexBuilder() *OverrideIndexBuilder {
	return &OverrideIndexBuilder{entries: make(map[string]overrideEntry)}
}

// Add offers one override record to the builder
func (b *OverrideIndexBuilder) Add(rec OverrideRecord) {
	b.stats.Records++

	key := strings.TrimSpace(rec.ArchiveID)
	if key == "" {
		b.stats.BlankKeys++
		return
	}

	existing, ok := b.entries[key]
	if ok {
		b.stats.Duplicates++
		if !existing.before(rec.Source, rec.Line) {
			return
		}
	}
	b.entries[key] = overrideEntry{value: rec.Override, source: rec.Source, line: rec.Line}
}

// Build returns the index. The builder must not be used afterwards.
func (b *OverrideIndexBuilder) Build() *OverrideIndex {
	values := make(map[string]string, len(b.entries))
	for k, e := range b.entries {
		values[k] = e.value
	}
	stats := b.stats
	stats.Keys = int64(len(values))
	b.entries = nil
	return &OverrideIndex{values: values, stats: stats}
}

// BuildOverrideIndex indexes a complete override feed
func BuildOverrideIndex(overrides []OverrideRecord) *OverrideIndex {
	b := NewOverrideIndexBuilder()
	for _, o := range overrides {
		b.Add(o)
	}
	return b.Build()
}
