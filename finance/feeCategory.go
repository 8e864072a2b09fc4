package finance

import (
	"strings"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
)

// FeeCategoryTable is a read-only fee type -> category lookup. Build one per run from
// the stored mappings and pass it in; the zero value maps everything to other.
type FeeCategoryTable struct {
	categories map[string]models.FeeCategory
}

func NewFeeCategoryTable(mappings []models.FeeCategoryMapping) FeeCategoryTable {
	categories := make(map[string]models.FeeCategory, len(mappings))
	for _, m := range mappings {
		feeType := strings.TrimSpace(m.FeeType)
		if feeType == "" || !m.Category.IsValid() {
			continue
		}
		categories[feeType] = m.Category
	}
	return FeeCategoryTable{categories: categories}
}

// CategoryFor returns the mapped category, or other for empty and unmapped fee types.
func (t FeeCategoryTable) CategoryFor(feeType string) models.FeeCategory {
	feeType = strings.TrimSpace(feeType)
	if feeType == "" || t.categories == nil {
		return models.FeeCategoryOther
	}
	if c, ok := t.categories[feeType]; ok {
		return c
	}
	return models.FeeCategoryOther
}

func (t FeeCategoryTable) Len() int {
	return len(t.categories)
}
