// Package vectorspace fits a TF-IDF vector space over catalog entries: a
// bounded vocabulary with smoothed inverse document frequencies and one
// sparse weight vector per entry.
package vectorspace

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	"github.com/reduct56/cookiefest-hackaton/internal/indexer/tokenizer"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
)

// DefaultMaxVocabSize bounds the vocabulary when Options leaves it unset.
const DefaultMaxVocabSize = 50000

// Options controls vocabulary fitting.
type Options struct {
	MaxVocabSize int
	Normalizer   *tokenizer.Normalizer
}

// Term is the fitted statistics of one vocabulary term.
type Term struct {
	Index int
	IDF   float64
	DF    int
}

// Vocabulary maps terms to dense indices in [0, Size()) and their inverse
// document frequencies. It is never modified after Build returns.
type Vocabulary struct {
	terms    map[string]Term
	byIndex  []string
	docCount int
}

// Lookup returns the fitted statistics of term.
func (v *Vocabulary) Lookup(term string) (Term, bool) {
	t, ok := v.terms[term]
	return t, ok
}

// Size returns the number of retained terms.
func (v *Vocabulary) Size() int {
	return len(v.byIndex)
}

// Term returns the term stored at index i.
func (v *Vocabulary) Term(i int) string {
	return v.byIndex[i]
}

// DocCount returns the number of documents the vocabulary was fitted on.
func (v *Vocabulary) DocCount() int {
	return v.docCount
}

// Vectorize weights terms with tf * idf over the vocabulary. Terms outside
// the vocabulary contribute nothing.
func (v *Vocabulary) Vectorize(terms []string) Vector {
	tf := make(map[int]float64, len(terms))
	for _, term := range terms {
		if t, ok := v.terms[term]; ok {
			tf[t.Index]++
		}
	}
	if len(tf) == 0 {
		return Vector{}
	}
	indices := make([]int, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	weights := make([]float64, len(indices))
	for i, idx := range indices {
		weights[i] = tf[idx] * v.terms[v.byIndex[idx]].IDF
	}
	return newVector(indices, weights)
}

// Space is a fitted vocabulary plus the vector of every input entry, in
// input order.
type Space struct {
	Vocabulary   *Vocabulary
	Vectors      []Vector
	Normalizer   *tokenizer.Normalizer
	MaxVocabSize int
}

// Build fits the vector space over entries. The vocabulary keeps at most
// MaxVocabSize terms, preferring those that occur in the most documents.
// Entries without indexable text get the zero vector.
func Build(entries []catalog.Entry, opts Options) (*Space, error) {
	if len(entries) == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}
	if opts.MaxVocabSize <= 0 {
		opts.MaxVocabSize = DefaultMaxVocabSize
	}
	if opts.Normalizer == nil {
		opts.Normalizer = tokenizer.New(tokenizer.All)
	}

	docs := make([][]string, len(entries))
	df := make(map[string]int)
	for i, entry := range entries {
		if !utf8.ValidString(entry.Name) || !utf8.ValidString(entry.ManufacturerItem) {
			return nil, fmt.Errorf("entry %d (code %q): %w: text is not valid UTF-8",
				i, entry.Code, apperrors.ErrInvalidEntry)
		}
		terms := opts.Normalizer.Normalize(entry.Text())
		docs[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	vocab := fitVocabulary(df, len(entries), opts.MaxVocabSize)
	vectors := make([]Vector, len(docs))
	for i, terms := range docs {
		vectors[i] = vocab.Vectorize(terms)
	}

	slog.Default().With("component", "vector-space").Debug("vector space built",
		"entries", len(entries),
		"distinct_terms", len(df),
		"vocabulary", vocab.Size(),
	)
	return &Space{
		Vocabulary:   vocab,
		Vectors:      vectors,
		Normalizer:   opts.Normalizer,
		MaxVocabSize: opts.MaxVocabSize,
	}, nil
}

func fitVocabulary(df map[string]int, n, maxSize int) *Vocabulary {
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if len(terms) > maxSize {
		sort.Slice(terms, func(i, j int) bool {
			if df[terms[i]] != df[terms[j]] {
				return df[terms[i]] > df[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:maxSize]
	}
	sort.Strings(terms)

	vocab := &Vocabulary{
		terms:    make(map[string]Term, len(terms)),
		byIndex:  terms,
		docCount: n,
	}
	for i, term := range terms {
		vocab.terms[term] = Term{
			Index: i,
			IDF:   smoothIDF(n, df[term]),
			DF:    df[term],
		}
	}
	return vocab
}

// smoothIDF is ln((1+n)/(1+df)) + 1, which stays positive even for a term
// present in every document.
func smoothIDF(n, df int) float64 {
	return math.Log(float64(1+n)/float64(1+df)) + 1
}
