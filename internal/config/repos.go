package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRepo = errors.New("invalid repository identifier")

const githubPrefix = "https://github.com/"

// NormalizeRepo accepts "owner/repo", "/owner/repo/" or a github.com URL.
func NormalizeRepo(value string) (string, error) {
	repo := strings.TrimSpace(value)
	if repo == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRepo)
	}
	repo = strings.TrimPrefix(repo, githubPrefix)
	repo = strings.TrimPrefix(repo, "/")
	repo = strings.TrimSuffix(repo, "/")

	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidRepo, value)
	}
	return parts[0] + "/" + parts[1], nil
}

// ParseRepoInput splits editor input on commas and whitespace, normalizes each
// token and drops duplicates, keeping first-seen order.
func ParseRepoInput(input string) ([]string, error) {
	tokens := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	seen := make(map[string]bool, len(tokens))
	repos := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		repo, err := NormalizeRepo(tok)
		if err != nil {
			return nil, err
		}
		if seen[repo] {
			continue
		}
		seen[repo] = true
		repos = append(repos, repo)
	}
	return repos, nil
}

// SplitRepo splits a normalized identifier into owner and name.
func SplitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %s: expected owner/repo", ErrInvalidRepo, repo)
	}
	return owner, name, nil
}
