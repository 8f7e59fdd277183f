// Package catalog defines the inventory records the matcher searches over and
// the adapters that turn loosely typed tabular rows into them.
package catalog

import "maps"

// Column names of the catalog table. They follow the inventory export the
// matcher was built for.
const (
	ColumnName               = "Номенклатура"
	ColumnManufacturerItem   = "ТоварПроизводителя"
	ColumnCode               = "Код"
	ColumnProcessed          = "Оформлено"
	ColumnPartiallyProcessed = "ОформленоЧастично"
	ColumnUnprocessed        = "БезОформления"
	ColumnMainAssortment     = "ОсновнойАссортимент"
)

// QueryColumn is the single required column of a request table.
const QueryColumn = ColumnName

// Status holds the registration flags of an inventory item. They are
// carried through to results for display and never take part in scoring.
type Status struct {
	Processed          bool `json:"processed" yaml:"processed"`
	PartiallyProcessed bool `json:"partially_processed" yaml:"partiallyProcessed"`
	Unprocessed        bool `json:"unprocessed" yaml:"unprocessed"`
	MainAssortment     bool `json:"main_assortment" yaml:"mainAssortment"`
}

// Entry is one inventory item. Name and ManufacturerItem are the indexed
// text; everything else is display data.
type Entry struct {
	ID               string            `json:"id" yaml:"id"`
	Code             string            `json:"code" yaml:"code"`
	Name             string            `json:"name" yaml:"name"`
	ManufacturerItem string            `json:"manufacturer_item" yaml:"manufacturerItem"`
	Status           Status            `json:"status" yaml:"status"`
	DisplayFields    map[string]string `json:"display_fields,omitempty" yaml:"displayFields,omitempty"`
}

// Text returns the searchable text of the entry: the name and the
// manufacturer's item description joined by a space.
func (e Entry) Text() string {
	return e.Name + " " + e.ManufacturerItem
}

// Label renders the "name (code)" display label.
func (e Entry) Label() string {
	return e.Name + " (" + e.Code + ")"
}

// Clone returns a copy that shares no mutable state with e.
func (e Entry) Clone() Entry {
	e.DisplayFields = maps.Clone(e.DisplayFields)
	return e
}
