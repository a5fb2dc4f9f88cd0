package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcin-skalski/prwatch/internal/config"
	"github.com/marcin-skalski/prwatch/internal/domain"
)

const (
	commandTimeout  = 20 * time.Second
	listConcurrency = 4
	pageSize        = 100
)

// Runner executes one gh invocation and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

type Client struct {
	logger *slog.Logger
	run    Runner
}

func NewClient(logger *slog.Logger) *Client {
	c := &Client{logger: logger}
	c.run = c.gh
	return c
}

// NewClientWithRunner swaps the gh executable for run.
func NewClientWithRunner(logger *slog.Logger, run Runner) *Client {
	return &Client{logger: logger, run: run}
}

func (c *Client) Viewer(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "api", "user")
	if err != nil {
		return "", fmt.Errorf("get viewer: %w", err)
	}
	return parseViewer(out)
}

// RepoFailure is one repository's share of a failed listing.
type RepoFailure struct {
	Repo string
	Err  error
}

// ListError reports every repository that failed during a listing. PRs from
// repositories that succeeded are discarded along with it.
type ListError struct {
	Failures []RepoFailure
}

func (e *ListError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Repo + ": " + f.Err.Error()
	}
	return strings.Join(parts, "; ")
}

func (e *ListError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// ListAuthoredPRs fans out over repos with a bounded pool. Any failing repo fails
// the whole call. Results are sorted by UpdatedAt, newest first.
func (c *Client) ListAuthoredPRs(ctx context.Context, repos []string, author string) ([]domain.PullRequest, error) {
	var (
		mu       sync.Mutex
		prs      []domain.PullRequest
		failures []RepoFailure
	)

	var g errgroup.Group
	g.SetLimit(listConcurrency)

	for _, repo := range repos {
		repo = strings.TrimSpace(repo)
		if repo == "" {
			continue
		}
		g.Go(func() error {
			items, err := c.listRepoPRs(ctx, repo, author)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, RepoFailure{Repo: repo, Err: err})
				return nil
			}
			prs = append(prs, items...)
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Repo < failures[j].Repo })
		c.logger.Warn("list authored PRs failed", "failed_repos", len(failures), "repos", len(repos))
		return nil, &ListError{Failures: failures}
	}

	sort.SliceStable(prs, func(i, j int) bool { return prs[i].UpdatedAt.After(prs[j].UpdatedAt) })
	c.logger.Debug("listed authored PRs", "repos", len(repos), "prs", len(prs))
	return prs, nil
}

func (c *Client) listRepoPRs(ctx context.Context, repo, author string) ([]domain.PullRequest, error) {
	owner, name, err := config.SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	out, err := c.run(ctx,
		"pr", "list",
		"-R", repo,
		"--author", author,
		"--state", "open",
		"--limit", strconv.Itoa(pageSize),
		"--json", "number,title,url,isDraft,updatedAt,headRefOid",
	)
	if err != nil {
		return nil, err
	}
	return parseAuthoredPRs(out, owner, name)
}

// ChecksForSHA merges check runs (all pages) with commit status contexts.
func (c *Client) ChecksForSHA(ctx context.Context, owner, repo, sha string) ([]domain.Check, error) {
	var first checkRunsPayload
	var statuses []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := c.checkRunsPage(gctx, owner, repo, sha, 1)
		if err != nil {
			return err
		}
		first, err = decodeCheckRuns(body)
		return err
	})
	g.Go(func() error {
		body, err := c.run(gctx, "api", fmt.Sprintf("repos/%s/%s/commits/%s/status?per_page=%d&page=1", owner, repo, sha, pageSize))
		statuses = body
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("checks for %s: %w", domain.CommitKey(owner, repo, sha), err)
	}

	runs := first.CheckRuns
	if first.TotalCount > pageSize {
		pages := (first.TotalCount + pageSize - 1) / pageSize
		rest := make([][]checkRunNode, pages-1)

		g, gctx := errgroup.WithContext(ctx)
		for page := 2; page <= pages; page++ {
			g.Go(func() error {
				body, err := c.checkRunsPage(gctx, owner, repo, sha, page)
				if err != nil {
					return err
				}
				p, err := decodeCheckRuns(body)
				rest[page-2] = p.CheckRuns
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("checks for %s: %w", domain.CommitKey(owner, repo, sha), err)
		}
		for _, r := range rest {
			runs = append(runs, r...)
		}
	}

	return buildChecks(runs, statuses)
}

func (c *Client) checkRunsPage(ctx context.Context, owner, repo, sha string, page int) ([]byte, error) {
	return c.run(ctx,
		"api", fmt.Sprintf("repos/%s/%s/commits/%s/check-runs?per_page=%d&page=%d", owner, repo, sha, pageSize, page),
		"-H", "Accept: application/vnd.github+json",
	)
}

func (c *Client) WorkflowRunsForSHA(ctx context.Context, owner, repo, sha string) ([]domain.WorkflowRun, error) {
	out, err := c.run(ctx, "api", fmt.Sprintf("repos/%s/%s/actions/runs?head_sha=%s&per_page=%d", owner, repo, sha, pageSize))
	if err != nil {
		return nil, fmt.Errorf("workflow runs for %s: %w", domain.CommitKey(owner, repo, sha), err)
	}
	return parseWorkflowRuns(out)
}

func (c *Client) headSHA(ctx context.Context, owner, repo string, number int) (string, error) {
	out, err := c.run(ctx, "api", fmt.Sprintf("repos/%s/%s/pulls/%d", owner, repo, number))
	if err != nil {
		return "", fmt.Errorf("get PR #%d: %w", number, err)
	}
	return parseHeadSHA(out)
}

// PRChecks resolves the PR's current head and returns its checks.
func (c *Client) PRChecks(ctx context.Context, owner, repo string, number int) ([]domain.Check, error) {
	sha, err := c.headSHA(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	return c.ChecksForSHA(ctx, owner, repo, sha)
}

func (c *Client) PRWorkflowRuns(ctx context.Context, owner, repo string, number int) ([]domain.WorkflowRun, error) {
	sha, err := c.headSHA(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	return c.WorkflowRunsForSHA(ctx, owner, repo, sha)
}

func (c *Client) PRDetailMeta(ctx context.Context, owner, repo string, number int) (domain.DetailMeta, error) {
	out, err := c.run(ctx,
		"pr", "view", strconv.Itoa(number),
		"-R", owner+"/"+repo,
		"--json", "reviewDecision,statusCheckRollup",
	)
	if err != nil {
		return domain.DetailMeta{}, fmt.Errorf("get PR #%d meta: %w", number, err)
	}
	return parseDetailMeta(out)
}

// RerunFailedWorkflowRuns asks for a rerun of the failed jobs of each run and
// returns how many requests were accepted before the first error.
func (c *Client) RerunFailedWorkflowRuns(ctx context.Context, owner, repo string, ids []int64) (int, error) {
	requested := 0
	for _, id := range ids {
		if _, err := c.run(ctx, "run", "rerun", strconv.FormatInt(id, 10), "--failed", "-R", owner+"/"+repo); err != nil {
			return requested, fmt.Errorf("rerun run %d: %w", id, err)
		}
		requested++
	}
	c.logger.Info("requested reruns", "repo", owner+"/"+repo, "count", requested)
	return requested, nil
}

func (c *Client) OpenInBrowser(ctx context.Context, owner, repo string, number int) error {
	if _, err := c.run(ctx, "pr", "view", strconv.Itoa(number), "-R", owner+"/"+repo, "--web"); err != nil {
		return fmt.Errorf("open PR #%d: %w", number, err)
	}
	return nil
}

func (c *Client) gh(ctx context.Context, args ...string) ([]byte, error) {
	c.logger.Debug("gh", "args", strings.Join(args, " "))
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, errors.New(compactError(string(exitErr.Stderr), err))
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gh %s: %w", args[0], ctx.Err())
		}
		return nil, err
	}
	return out, nil
}

// compactError keeps the last "gh: " line of stderr, which is where gh puts
// the actual reason.
func compactError(stderr string, err error) string {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "gh: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "gh:"))
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	if err != nil {
		return err.Error()
	}
	return "unknown gh command error"
}
