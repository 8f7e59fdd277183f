// Package ranker selects the best-scoring catalog entries for a request and
// turns them into display-ready result records.
package ranker

import (
	"container/heap"
	"fmt"
	"strconv"

	"github.com/reduct56/cookiefest-hackaton/internal/catalog"
	apperrors "github.com/reduct56/cookiefest-hackaton/pkg/errors"
)

// ScoredMatch refers to a catalog entry by its position in the snapshot.
type ScoredMatch struct {
	Index int
	Score float64
	Query string
}

// ResultRecord is one output row: a request, the matched entry and the
// similarity between them.
type ResultRecord struct {
	Query              string            `json:"query"`
	Label              string            `json:"label"`
	Score              float64           `json:"similarity"`
	EntryID            string            `json:"entry_id"`
	Code               string            `json:"code"`
	Name               string            `json:"name"`
	ManufacturerItem   string            `json:"manufacturer_item"`
	Processed          bool              `json:"processed"`
	PartiallyProcessed bool              `json:"partially_processed"`
	Unprocessed        bool              `json:"unprocessed"`
	MainAssortment     bool              `json:"main_assortment"`
	DisplayFields      map[string]string `json:"display_fields,omitempty"`
}

// Columns is the header matching ResultRecord.Row.
var Columns = []string{
	"Запрос",
	"Номенклатура и код товара",
	"Сходство",
	catalog.ColumnManufacturerItem,
	catalog.ColumnProcessed,
	catalog.ColumnPartiallyProcessed,
	catalog.ColumnUnprocessed,
	catalog.ColumnMainAssortment,
}

// Row flattens the record in Columns order.
func (r ResultRecord) Row() []string {
	return []string{
		r.Query,
		r.Label,
		strconv.FormatFloat(r.Score, 'f', 6, 64),
		r.ManufacturerItem,
		strconv.FormatBool(r.Processed),
		strconv.FormatBool(r.PartiallyProcessed),
		strconv.FormatBool(r.Unprocessed),
		strconv.FormatBool(r.MainAssortment),
	}
}

// EntrySource resolves snapshot positions to catalog entries.
type EntrySource interface {
	Entry(i int) catalog.Entry
}

// Rank returns up to topK matches with a non-zero score, best first. Equal
// scores keep catalog order. A request that scores zero everywhere gets an
// empty result.
func Rank(scores []float64, query string, topK int) ([]ScoredMatch, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", apperrors.ErrInvalidTopK, topK)
	}
	if topK > len(scores) {
		topK = len(scores)
	}
	h := make(matchHeap, 0, topK+1)
	for i, score := range scores {
		if score <= 0 {
			continue
		}
		if len(h) == topK {
			worst := h[0]
			if score < worst.Score || (score == worst.Score && i > worst.Index) {
				continue
			}
		}
		heap.Push(&h, ScoredMatch{Index: i, Score: score, Query: query})
		if h.Len() > topK {
			heap.Pop(&h)
		}
	}
	result := make([]ScoredMatch, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(ScoredMatch)
	}
	return result, nil
}

// Materialize builds result records for matches, resolving entries through
// src. The snapshot behind src is only read.
func Materialize(matches []ScoredMatch, src EntrySource) []ResultRecord {
	records := make([]ResultRecord, 0, len(matches))
	for _, m := range matches {
		e := src.Entry(m.Index)
		records = append(records, ResultRecord{
			Query:              m.Query,
			Label:              e.Label(),
			Score:              m.Score,
			EntryID:            e.ID,
			Code:               e.Code,
			Name:               e.Name,
			ManufacturerItem:   e.ManufacturerItem,
			Processed:          e.Status.Processed,
			PartiallyProcessed: e.Status.PartiallyProcessed,
			Unprocessed:        e.Status.Unprocessed,
			MainAssortment:     e.Status.MainAssortment,
			DisplayFields:      e.DisplayFields,
		})
	}
	return records
}

// matchHeap is a min-heap whose root is the weakest kept match: the lowest
// score, and among equal scores the latest catalog position.
type matchHeap []ScoredMatch

func (h matchHeap) Len() int { return len(h) }

func (h matchHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Index > h[j].Index
}

func (h matchHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *matchHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredMatch))
}

func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
