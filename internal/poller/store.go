// Package poller schedules the four data tiers behind the dashboard and keeps
// them consistent with each other and with the current selection.
package poller

import (
	"context"
	"strings"
	"time"

	"github.com/marcin-skalski/prwatch/internal/cache"
	"github.com/marcin-skalski/prwatch/internal/config"
	"github.com/marcin-skalski/prwatch/internal/domain"
)

const (
	BootstrapKey = "bootstrap"

	RollupStaleAfter = 20 * time.Second
	DetailInterval   = 15 * time.Second
	// RerunSettleDelay gives the remote side time to move a rerun out of
	// "requested" before the forced detail refetch.
	RerunSettleDelay = 4 * time.Second
)

// Provider is the remote data source. github.Client implements it.
type Provider interface {
	Viewer(ctx context.Context) (string, error)
	ListAuthoredPRs(ctx context.Context, repos []string, author string) ([]domain.PullRequest, error)
	ChecksForSHA(ctx context.Context, owner, repo, sha string) ([]domain.Check, error)
	WorkflowRunsForSHA(ctx context.Context, owner, repo, sha string) ([]domain.WorkflowRun, error)
	PRChecks(ctx context.Context, owner, repo string, number int) ([]domain.Check, error)
	PRWorkflowRuns(ctx context.Context, owner, repo string, number int) ([]domain.WorkflowRun, error)
	PRDetailMeta(ctx context.Context, owner, repo string, number int) (domain.DetailMeta, error)
	RerunFailedWorkflowRuns(ctx context.Context, owner, repo string, ids []int64) (int, error)
	OpenInBrowser(ctx context.Context, owner, repo string, number int) error
}

// ConfigStore loads and persists the watched repositories. config.File
// implements it.
type ConfigStore interface {
	Load() (*config.Config, error)
	Save(cfg *config.Config) error
}

type Bootstrap struct {
	Viewer string
	Config *config.Config
}

// DetailData is everything shown for the selected PR.
type DetailData struct {
	Checks         []domain.Check
	Runs           []domain.WorkflowRun
	ReviewDecision domain.ReviewDecision
	Rollup         domain.Category
}

// Store holds the tiers. It is passed to the orchestrator rather than shared
// globally so tests can inspect and seed it.
type Store struct {
	Bootstrap *cache.Tier[Bootstrap]
	PRs       *cache.Tier[[]domain.PullRequest]
	Rollups   *cache.Tier[domain.Category]
	Details   *cache.Tier[DetailData]
}

func NewStore(refresh time.Duration, now func() time.Time) *Store {
	return &Store{
		Bootstrap: cache.NewTier[Bootstrap]("bootstrap", cache.Policy{StaleAfter: cache.Never, Retries: 2}, now),
		PRs:       cache.NewTier[[]domain.PullRequest]("prs", listPolicy(refresh), now),
		Rollups:   cache.NewTier[domain.Category]("rollup", cache.Policy{StaleAfter: RollupStaleAfter, Retries: 1}, now),
		Details:   cache.NewTier[DetailData]("detail", cache.Policy{StaleAfter: 0, Interval: DetailInterval, Retries: 1}, now),
	}
}

func listPolicy(refresh time.Duration) cache.Policy {
	return cache.Policy{StaleAfter: cache.Never, Interval: refresh}
}

// ListKey identifies one PR listing: the watched repos and the author.
func ListKey(repos []string, viewer string) string {
	return strings.Join(repos, ",") + "|" + viewer
}
