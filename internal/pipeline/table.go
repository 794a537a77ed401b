package pipeline

import (
	"iter"
	"slices"

	"retail-analytics/internal/models"
)

// CleanedTable is the immutable output of a pipeline run, in source order.
// A nil *CleanedTable behaves as an empty table.
type CleanedTable struct {
	records []models.CleanedRecord
}

// NewCleanedTable copies records into a table.
func NewCleanedTable(records []models.CleanedRecord) *CleanedTable {
	return &CleanedTable{records: slices.Clone(records)}
}

func (t *CleanedTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

func (t *CleanedTable) At(i int) models.CleanedRecord {
	return t.records[i]
}

// Records returns a copy of the rows.
func (t *CleanedTable) Records() []models.CleanedRecord {
	if t == nil {
		return []models.CleanedRecord{}
	}
	return slices.Clone(t.records)
}

// All yields each row by value.
func (t *CleanedTable) All() iter.Seq[models.CleanedRecord] {
	return func(yield func(models.CleanedRecord) bool) {
		if t == nil {
			return
		}
		for _, r := range t.records {
			if !yield(r) {
				return
			}
		}
	}
}
