package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcin-skalski/prwatch/internal/domain"
)

func parseViewer(body []byte) (string, error) {
	var payload struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parse viewer: %w", err)
	}
	if strings.TrimSpace(payload.Login) == "" {
		return "", errors.New("viewer login is empty")
	}
	return payload.Login, nil
}

type prListItem struct {
	Number     *int    `json:"number"`
	Title      *string `json:"title"`
	URL        *string `json:"url"`
	IsDraft    bool    `json:"isDraft"`
	UpdatedAt  string  `json:"updatedAt"`
	HeadRefOid string  `json:"headRefOid"`
}

func parseAuthoredPRs(body []byte, owner, repo string) ([]domain.PullRequest, error) {
	var items []prListItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse PRs: %w", err)
	}

	prs := make([]domain.PullRequest, 0, len(items))
	for _, it := range items {
		if it.Number == nil || it.Title == nil || it.URL == nil {
			continue
		}
		prs = append(prs, domain.PullRequest{
			Number:    *it.Number,
			Title:     *it.Title,
			URL:       *it.URL,
			Owner:     owner,
			Repo:      repo,
			HeadSHA:   it.HeadRefOid,
			Draft:     it.IsDraft,
			UpdatedAt: parseTime(it.UpdatedAt),
		})
	}
	return prs, nil
}

func parseHeadSHA(body []byte) (string, error) {
	var payload struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parse PR: %w", err)
	}
	if strings.TrimSpace(payload.Head.SHA) == "" {
		return "", errors.New("no head sha found")
	}
	return payload.Head.SHA, nil
}

type checkRunNode struct {
	Name       *string `json:"name"`
	HTMLURL    string  `json:"html_url"`
	Status     string  `json:"status"`
	Conclusion string  `json:"conclusion"`
	App        struct {
		Name string `json:"name"`
	} `json:"app"`
}

type checkRunsPayload struct {
	TotalCount int            `json:"total_count"`
	CheckRuns  []checkRunNode `json:"check_runs"`
}

type statusPayload struct {
	Statuses []struct {
		Context     string `json:"context"`
		Description string `json:"description"`
		TargetURL   string `json:"target_url"`
		State       string `json:"state"`
	} `json:"statuses"`
}

func decodeCheckRuns(body []byte) (checkRunsPayload, error) {
	var p checkRunsPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("parse check runs: %w", err)
	}
	return p, nil
}

func buildChecks(runs []checkRunNode, statusBody []byte) ([]domain.Check, error) {
	var statuses statusPayload
	if len(statusBody) > 0 {
		if err := json.Unmarshal(statusBody, &statuses); err != nil {
			return nil, fmt.Errorf("parse statuses: %w", err)
		}
	}

	out := make([]domain.Check, 0, len(runs)+len(statuses.Statuses))
	for _, r := range runs {
		name := "unnamed check"
		if r.Name != nil {
			name = *r.Name
		}
		source := r.App.Name
		if source == "" {
			source = "check-run"
		}
		out = append(out, domain.Check{
			Name:       name,
			Source:     source,
			URL:        r.HTMLURL,
			Status:     r.Status,
			Conclusion: r.Conclusion,
			Category:   domain.ClassifyCheckRun(r.Status, r.Conclusion),
		})
	}

	for _, s := range statuses.Statuses {
		label := s.Context
		if label == "" {
			label = "status"
		}
		name := label
		if s.Description != "" {
			name = label + " - " + s.Description
		}
		out = append(out, domain.Check{
			Name:       name,
			Source:     "status",
			URL:        s.TargetURL,
			Status:     s.State,
			Conclusion: s.State,
			Category:   domain.ClassifyStatusContext(s.State),
		})
	}

	domain.SortChecks(out)
	return out, nil
}

func parseWorkflowRuns(body []byte) ([]domain.WorkflowRun, error) {
	var payload struct {
		WorkflowRuns []struct {
			ID           *int64 `json:"id"`
			Name         string `json:"name"`
			DisplayTitle string `json:"display_title"`
			Event        string `json:"event"`
			Status       string `json:"status"`
			Conclusion   string `json:"conclusion"`
			HTMLURL      string `json:"html_url"`
			CreatedAt    string `json:"created_at"`
			UpdatedAt    string `json:"updated_at"`
		} `json:"workflow_runs"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse workflow runs: %w", err)
	}

	runs := make([]domain.WorkflowRun, 0, len(payload.WorkflowRuns))
	for _, r := range payload.WorkflowRuns {
		if r.ID == nil {
			continue
		}
		runs = append(runs, domain.WorkflowRun{
			ID:          *r.ID,
			Name:        r.Name,
			DisplayName: r.DisplayTitle,
			Event:       r.Event,
			Status:      r.Status,
			Conclusion:  r.Conclusion,
			URL:         r.HTMLURL,
			CreatedAt:   parseTime(r.CreatedAt),
			UpdatedAt:   parseTime(r.UpdatedAt),
			Category:    domain.ClassifyWorkflowRun(r.Status, r.Conclusion),
		})
	}
	domain.SortRuns(runs)
	return runs, nil
}

type rollupNode struct {
	Name       string `json:"name"`
	Context    string `json:"context"`
	IsRequired bool   `json:"isRequired"`
	Required   bool   `json:"required"`
}

func parseDetailMeta(body []byte) (domain.DetailMeta, error) {
	var payload struct {
		ReviewDecision    string          `json:"reviewDecision"`
		StatusCheckRollup json.RawMessage `json:"statusCheckRollup"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.DetailMeta{}, fmt.Errorf("parse PR meta: %w", err)
	}
	return domain.DetailMeta{
		ReviewDecision:     domain.ParseReviewDecision(payload.ReviewDecision),
		RequiredCheckNames: requiredCheckNames(payload.StatusCheckRollup),
	}, nil
}

// requiredCheckNames accepts the rollup as a flat node list, or as an object
// holding contexts either directly or under contexts.nodes.
func requiredCheckNames(raw json.RawMessage) []string {
	var nodes []rollupNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		var obj struct {
			Contexts json.RawMessage `json:"contexts"`
		}
		if json.Unmarshal(raw, &obj) == nil && len(obj.Contexts) > 0 {
			if json.Unmarshal(obj.Contexts, &nodes) != nil {
				var conn struct {
					Nodes []rollupNode `json:"nodes"`
				}
				if json.Unmarshal(obj.Contexts, &conn) == nil {
					nodes = conn.Nodes
				}
			}
		}
	}

	seen := make(map[string]bool)
	var names []string
	for _, n := range nodes {
		if !n.IsRequired && !n.Required {
			continue
		}
		name := n.Name
		if name == "" {
			name = n.Context
		}
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}
	return t
}
