package domain

import "sort"

// DetailRow is one line of the detail list: a check or a workflow run.
type DetailRow struct {
	Label    string
	Category Category
	Required bool
	URL      string
	RunID    int64
}

func (r DetailRow) CheckCategory() Category { return r.Category }

// DetailRows lists checks then runs, grouped by display severity. Order within
// a group is the input order.
func DetailRows(checks []Check, runs []WorkflowRun) []DetailRow {
	rows := make([]DetailRow, 0, len(checks)+len(runs))
	for _, c := range checks {
		rows = append(rows, DetailRow{Label: c.Name, Category: c.Category, Required: c.Required, URL: c.URL})
	}
	for _, r := range runs {
		rows = append(rows, DetailRow{Label: r.Label(), Category: r.Category, URL: r.URL, RunID: r.ID})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return DisplayRank(rows[i].Category) < DisplayRank(rows[j].Category)
	})
	return rows
}
