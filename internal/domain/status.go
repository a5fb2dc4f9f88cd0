package domain

import (
	"sort"
	"strings"
)

type Category string

const (
	CategoryRunning   Category = "running"
	CategoryQueued    Category = "queued"
	CategoryPending   Category = "pending"
	CategoryFailed    Category = "failed"
	CategoryCancelled Category = "cancelled"
	CategoryPassed    Category = "passed"
	CategorySkipped   Category = "skipped"
)

// Categories lists every category in canonical order.
var Categories = []Category{
	CategoryRunning,
	CategoryQueued,
	CategoryPending,
	CategoryFailed,
	CategoryCancelled,
	CategoryPassed,
	CategorySkipped,
}

// CanonicalRank is the stable sort key for lists of checks and runs.
func CanonicalRank(c Category) int {
	for i, v := range Categories {
		if v == c {
			return i
		}
	}
	return len(Categories)
}

// DisplayRank groups detail rows by severity: yellow, red, green, gray.
// Passed sorts ahead of cancelled here, unlike CanonicalRank.
func DisplayRank(c Category) int {
	switch c {
	case CategoryRunning:
		return 0
	case CategoryQueued:
		return 1
	case CategoryPending:
		return 2
	case CategoryFailed:
		return 3
	case CategoryPassed:
		return 4
	case CategoryCancelled:
		return 5
	case CategorySkipped:
		return 6
	default:
		return 7
	}
}

func (c Category) InProgress() bool {
	return c == CategoryRunning || c == CategoryQueued || c == CategoryPending
}

func ClassifyCheckRun(status, conclusion string) Category {
	if status != "completed" {
		switch status {
		case "queued":
			return CategoryQueued
		case "waiting", "pending", "requested":
			return CategoryPending
		default:
			return CategoryRunning
		}
	}

	switch conclusion {
	case "success":
		return CategoryPassed
	case "neutral", "skipped":
		return CategorySkipped
	case "cancelled":
		return CategoryCancelled
	default:
		return CategoryFailed
	}
}

// ClassifyStatusContext treats unknown states as not yet decided.
func ClassifyStatusContext(state string) Category {
	switch state {
	case "success":
		return CategoryPassed
	case "pending":
		return CategoryPending
	case "failure", "error":
		return CategoryFailed
	default:
		return CategoryPending
	}
}

func ClassifyWorkflowRun(status, conclusion string) Category {
	if status == "queued" {
		return CategoryQueued
	}
	return ClassifyCheckRun(status, conclusion)
}

// Rollup summarizes checks and runs into one category. The first in-progress item
// wins outright, even over failures seen before it: running means the final state
// is not known yet.
func Rollup(checks []Check, runs []WorkflowRun) Category {
	failed := false
	for _, c := range checks {
		if c.Category.InProgress() {
			return CategoryRunning
		}
		if c.Category == CategoryFailed {
			failed = true
		}
	}
	for _, r := range runs {
		if r.Category.InProgress() {
			return CategoryRunning
		}
		if r.Category == CategoryFailed {
			failed = true
		}
	}
	if failed {
		return CategoryFailed
	}
	return CategoryPassed
}

type Categorized interface {
	CheckCategory() Category
}

// Summarize returns a zero-filled histogram over all seven categories.
func Summarize[T Categorized](items []T) map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = 0
	}
	for _, item := range items {
		out[item.CheckCategory()]++
	}
	return out
}

func SortChecks(checks []Check) {
	sort.SliceStable(checks, func(i, j int) bool {
		li, ri := CanonicalRank(checks[i].Category), CanonicalRank(checks[j].Category)
		if li != ri {
			return li < ri
		}
		return checks[i].Name < checks[j].Name
	})
}

func SortRuns(runs []WorkflowRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		li, ri := CanonicalRank(runs[i].Category), CanonicalRank(runs[j].Category)
		if li != ri {
			return li < ri
		}
		return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
	})
}

// MarkRequired flags checks named in the branch protection list. Status contexts
// are rendered as "context - description", so the prefix is matched too.
func MarkRequired(checks []Check, requiredNames []string) []Check {
	if len(requiredNames) == 0 {
		return checks
	}
	required := make(map[string]bool, len(requiredNames))
	for _, n := range requiredNames {
		if n = strings.TrimSpace(n); n != "" {
			required[n] = true
		}
	}
	out := make([]Check, len(checks))
	for i, c := range checks {
		prefix, _, _ := strings.Cut(c.Name, " - ")
		c.Required = required[c.Name] || required[prefix]
		out[i] = c
	}
	return out
}
