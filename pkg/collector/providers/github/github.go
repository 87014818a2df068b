package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v72/github"
	"github.com/rs/zerolog"

	"github.com/aifeedco/aifeed/pkg/collector"
	"github.com/aifeedco/aifeed/pkg/storage/postgres"
)

const listLimit = 20

// Provider reads release notes from a GitHub repository. The source URL
// holds the repository as owner/repo or a full github.com URL.
type Provider struct {
	logger *zerolog.Logger
	client *github.Client
}

// New builds a github provider. A token raises the rate limit and grants
// access to private repositories; without one the anonymous client serves
// public repositories.
func New(logger *zerolog.Logger, token string) *Provider {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &Provider{logger: logger, client: client}
}

func (p *Provider) Kind() string { return postgres.SourceKindGitHub }

func (p *Provider) List(ctx context.Context, src *postgres.Source) ([]collector.Item, error) {
	owner, repo, err := splitRepo(src.URL)
	if err != nil {
		return nil, err
	}

	releases, _, err := p.client.Repositories.ListReleases(ctx, owner, repo, &github.ListOptions{
		PerPage: listLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}

	items := make([]collector.Item, 0, len(releases))
	for _, release := range releases {
		if release.GetDraft() || release.GetPrerelease() {
			continue
		}

		name := release.GetName()
		if name == "" {
			name = release.GetTagName()
		}

		item := collector.Item{
			URL:     release.GetHTMLURL(),
			Title:   fmt.Sprintf("%s/%s: %s", owner, repo, name),
			Content: release.GetBody(),
			Author:  release.GetAuthor().GetLogin(),
		}
		if published := release.GetPublishedAt(); !published.Time.IsZero() {
			publishedAt := published.Time
			item.PublishedAt = &publishedAt
		}

		items = append(items, item)
	}

	return items, nil
}

// FetchContent returns the release notes from the listing. The release
// body is already the complete document.
func (p *Provider) FetchContent(ctx context.Context, item *collector.Item) (string, error) {
	return item.Content, nil
}

func splitRepo(raw string) (owner, repo string, err error) {
	path := strings.TrimSpace(raw)

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		parsed, parseErr := url.Parse(path)
		if parseErr != nil {
			return "", "", fmt.Errorf("parse repository url: %w", parseErr)
		}
		path = parsed.Path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository %q is not owner/repo", raw)
	}
	return parts[0], parts[1], nil
}
