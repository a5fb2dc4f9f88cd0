package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoSelection = errors.New("no pull request selected")

type PullRequest struct {
	Number    int
	Title     string
	URL       string
	Owner     string
	Repo      string
	HeadSHA   string
	Draft     bool
	UpdatedAt time.Time
}

// Key identifies the pull request across refreshes, independent of title or head commit.
func (pr PullRequest) Key() string {
	return PRKey(pr.Owner, pr.Repo, pr.Number)
}

// RollupKey identifies the check state of the commit the PR currently points at.
func (pr PullRequest) RollupKey() string {
	return CommitKey(pr.Owner, pr.Repo, pr.HeadSHA)
}

func (pr PullRequest) FullRepo() string {
	return pr.Owner + "/" + pr.Repo
}

func PRKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}

func CommitKey(owner, repo, sha string) string {
	return owner + "/" + repo + "@" + sha
}

type Check struct {
	Name       string
	Source     string
	URL        string
	Status     string
	Conclusion string
	Category   Category
	Required   bool
}

func (c Check) CheckCategory() Category { return c.Category }

type WorkflowRun struct {
	ID          int64
	Name        string
	DisplayName string
	Event       string
	Status      string
	Conclusion  string
	URL         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Category    Category
}

func (r WorkflowRun) CheckCategory() Category { return r.Category }

// Label is the name shown in the detail list.
func (r WorkflowRun) Label() string {
	name := r.DisplayName
	if name == "" {
		name = r.Name
	}
	return fmt.Sprintf("%s (#%d)", name, r.ID)
}

type ReviewDecision string

const (
	ReviewApproved         ReviewDecision = "APPROVED"
	ReviewRequired         ReviewDecision = "REVIEW_REQUIRED"
	ReviewChangesRequested ReviewDecision = "CHANGES_REQUESTED"
	ReviewUnknown          ReviewDecision = "UNKNOWN"
)

func ParseReviewDecision(s string) ReviewDecision {
	switch ReviewDecision(s) {
	case ReviewApproved, ReviewRequired, ReviewChangesRequested:
		return ReviewDecision(s)
	default:
		return ReviewUnknown
	}
}

// Label returns the human readable decision, empty for UNKNOWN.
func (d ReviewDecision) Label() string {
	switch d {
	case ReviewApproved:
		return "Approved √"
	case ReviewChangesRequested:
		return "Changes requested"
	case ReviewRequired:
		return "Review required"
	default:
		return ""
	}
}

type DetailMeta struct {
	ReviewDecision     ReviewDecision
	RequiredCheckNames []string
}
