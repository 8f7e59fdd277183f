// Package index holds the similarity index: an immutable snapshot of the
// catalog together with its fitted vector space.
package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
	"time"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer/vectorspace"
)

// Snapshot is one fitted catalog. All fields are private and no method
// mutates them, so a published Snapshot can be shared by any number of
// goroutines without locking. Entry i and vector i describe the same item.
type Snapshot struct {
	version     uint64
	fingerprint string
	builtAt     time.Time
	entries     []catalog.Entry
	space       *vectorspace.Space
}

// Stats summarises a snapshot for logs and health reports.
type Stats struct {
	Version        uint64    `json:"version"`
	Fingerprint    string    `json:"fingerprint"`
	Entries        int       `json:"entries"`
	VocabularySize int       `json:"vocabulary_size"`
	EmptyEntries   int       `json:"empty_entries"`
	BuiltAt        time.Time `json:"built_at"`
}

// Build fits a snapshot over entries. The entries are copied, so later
// changes to the caller's slice do not leak into the index.
func Build(entries []catalog.Entry, opts vectorspace.Options, version uint64) (*Snapshot, error) {
	owned := make([]catalog.Entry, len(entries))
	for i, e := range entries {
		owned[i] = e.Clone()
	}
	space, err := vectorspace.Build(owned, opts)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		version:     version,
		fingerprint: fingerprint(owned, space),
		builtAt:     time.Now().UTC(),
		entries:     owned,
		space:       space,
	}, nil
}

// Version is the load counter of the owning engine. It restarts at 1 in
// every process.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Fingerprint identifies the snapshot by content: every entry field and the
// fitting options. Two processes that load the same catalog with the same
// options get the same fingerprint.
func (s *Snapshot) Fingerprint() string {
	return s.fingerprint
}

func fingerprint(entries []catalog.Entry, space *vectorspace.Space) string {
	h := sha256.New()
	fmt.Fprintf(h, "stop=%s|vocab=%d|n=%d\n", space.Normalizer.Language(), space.MaxVocabSize, len(entries))
	for _, e := range entries {
		fmt.Fprintf(h, "%q|%q|%q|%q|%t|%t|%t|%t", e.ID, e.Code, e.Name, e.ManufacturerItem,
			e.Status.Processed, e.Status.PartiallyProcessed, e.Status.Unprocessed, e.Status.MainAssortment)
		writeFields(h, e.DisplayFields)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func writeFields(h hash.Hash, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "|%q=%q", k, fields[k])
	}
}

// Len returns the number of catalog entries.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Entry returns a copy of the i-th catalog entry.
func (s *Snapshot) Entry(i int) catalog.Entry {
	return s.entries[i].Clone()
}

// Vocabulary returns the fitted vocabulary. Its API is read-only.
func (s *Snapshot) Vocabulary() *vectorspace.Vocabulary {
	return s.space.Vocabulary
}

// Project maps a request into the snapshot's vector space using the same
// normalisation and weights as the catalog. Unknown terms are ignored.
func (s *Snapshot) Project(query string) vectorspace.Vector {
	return s.space.Vocabulary.Vectorize(s.space.Normalizer.Normalize(query))
}

// ScoreAll returns the cosine similarity of q against every entry, in
// catalog order.
func (s *Snapshot) ScoreAll(q vectorspace.Vector) []float64 {
	scores := make([]float64, len(s.space.Vectors))
	if q.IsZero() {
		return scores
	}
	for i, doc := range s.space.Vectors {
		scores[i] = vectorspace.Cosine(q, doc)
	}
	return scores
}

func (s *Snapshot) Stats() Stats {
	empty := 0
	for _, v := range s.space.Vectors {
		if v.IsZero() {
			empty++
		}
	}
	return Stats{
		Version:        s.version,
		Fingerprint:    s.fingerprint,
		Entries:        len(s.entries),
		VocabularySize: s.space.Vocabulary.Size(),
		EmptyEntries:   empty,
		BuiltAt:        s.builtAt,
	}
}

// AllZero reports whether no entry scored above zero, which means the
// request matched nothing.
func AllZero(scores []float64) bool {
	for _, sc := range scores {
		if sc != 0 {
			return false
		}
	}
	return true
}
