package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	types "github.com/weftlabs/weft-backend/internal/domain"
	"github.com/weftlabs/weft-backend/internal/pipeline"
	"github.com/weftlabs/weft-backend/internal/platform/logger"
)

const pageSize = 100

// Source adapts the GitHub REST API to the pipeline: an owner's repositories
// are the parent groups, pull requests and issues are the items.
type Source struct {
	client *gh.Client
	owner  string
	log    *logger.Logger
}

func NewSource(ctx context.Context, log *logger.Logger) (*Source, error) {
	if log == nil {
		return nil, fmt.Errorf("github: logger required")
	}
	token := strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("github: missing GITHUB_TOKEN")
	}
	owner := strings.TrimSpace(os.Getenv("GITHUB_OWNER"))
	if owner == "" {
		return nil, fmt.Errorf("github: missing GITHUB_OWNER")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Source{
		client: gh.NewClient(oauth2.NewClient(ctx, ts)),
		owner:  owner,
		log:    log.With("source", "github"),
	}, nil
}

// Discover lists the owner's repositories. The full name (owner/repo) is the
// group's external ID so job names stay readable after sanitizing.
func (s *Source) Discover(ctx context.Context) ([]pipeline.DiscoveredGroup, error) {
	var out []pipeline.DiscoveredGroup
	opts := &gh.RepositoryListOptions{
		ListOptions: gh.ListOptions{PerPage: pageSize},
	}
	for {
		repos, resp, err := s.client.Repositories.List(ctx, s.owner, opts)
		if err != nil {
			return nil, fmt.Errorf("github: list repositories for %s: %w", s.owner, err)
		}
		for _, repo := range repos {
			raw, err := json.Marshal(repo)
			if err != nil {
				return nil, fmt.Errorf("github: marshal repository %s: %w", repo.GetFullName(), err)
			}
			out = append(out, pipeline.DiscoveredGroup{
				ExternalID:     repo.GetFullName(),
				Name:           repo.GetName(),
				Type:           types.GroupGithubRepo,
				RawAPIResponse: raw,
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

const (
	ContentTypePullRequest = "pull_request"
	ContentTypeIssue       = "issue"
)

// Split emits a repository's pull requests first, then its issues, as
// separately typed chunks sharing one running ordinal so job names never
// collide. The watermark bounds both walks to items updated since the last
// run.
func (s *Source) Split(ctx context.Context, desc pipeline.GroupDescriptor, maxItems int, emit func(pipeline.Chunk) error) error {
	owner, repo, err := splitFullName(desc.ID)
	if err != nil {
		return err
	}
	since, err := watermarkTime(desc.Oldest)
	if err != nil {
		return err
	}

	ordinal := 0
	emitTyped := func(contentType string, buf []json.RawMessage) error {
		chunk := pipeline.Chunk{
			ID:                        strconv.Itoa(ordinal),
			ParentGroupID:             desc.ID,
			ParentGroupRawAPIResponse: desc.RawAPIResponse,
			TS:                        desc.Oldest,
			Content:                   buf,
			ContentType:               contentType,
		}
		ordinal++
		return emit(chunk)
	}

	if err := s.splitPullRequests(ctx, owner, repo, since, maxItems, emitTyped); err != nil {
		return err
	}
	return s.splitIssues(ctx, owner, repo, since, maxItems, emitTyped)
}

func (s *Source) splitPullRequests(ctx context.Context, owner, repo string, since *time.Time, maxItems int, emitTyped func(string, []json.RawMessage) error) error {
	opts := &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: pageSize},
	}
	buf := make([]json.RawMessage, 0, maxItems)
	for {
		prs, resp, err := s.client.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return fmt.Errorf("github: list pull requests %s/%s: %w", owner, repo, err)
		}
		for _, pr := range prs {
			// Sorted by updated desc, so the first stale item ends the walk.
			if since != nil && pr.GetUpdatedAt().Time.Before(*since) {
				prs = nil
				resp.NextPage = 0
				break
			}
			raw, err := json.Marshal(pr)
			if err != nil {
				return fmt.Errorf("github: marshal pull request #%d: %w", pr.GetNumber(), err)
			}
			buf = append(buf, raw)
			if len(buf) >= maxItems {
				if err := emitTyped(ContentTypePullRequest, buf); err != nil {
					return err
				}
				buf = make([]json.RawMessage, 0, maxItems)
			}
		}
		if resp.NextPage == 0 {
			if len(buf) > 0 {
				return emitTyped(ContentTypePullRequest, buf)
			}
			return nil
		}
		opts.Page = resp.NextPage
	}
}

func (s *Source) splitIssues(ctx context.Context, owner, repo string, since *time.Time, maxItems int, emitTyped func(string, []json.RawMessage) error) error {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: pageSize},
	}
	if since != nil {
		opts.Since = *since
	}
	buf := make([]json.RawMessage, 0, maxItems)
	for {
		issues, resp, err := s.client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return fmt.Errorf("github: list issues %s/%s: %w", owner, repo, err)
		}
		for _, issue := range issues {
			// The issues API also returns pull requests; those were
			// already emitted with their full PR payloads.
			if issue.IsPullRequest() {
				continue
			}
			raw, err := json.Marshal(issue)
			if err != nil {
				return fmt.Errorf("github: marshal issue #%d: %w", issue.GetNumber(), err)
			}
			buf = append(buf, raw)
			if len(buf) >= maxItems {
				if err := emitTyped(ContentTypeIssue, buf); err != nil {
					return err
				}
				buf = make([]json.RawMessage, 0, maxItems)
			}
		}
		if resp.NextPage == 0 {
			if len(buf) > 0 {
				return emitTyped(ContentTypeIssue, buf)
			}
			return nil
		}
		opts.Page = resp.NextPage
	}
}

func splitFullName(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github: malformed repository id %q", fullName)
	}
	return parts[0], parts[1], nil
}

func watermarkTime(oldest *string) (*time.Time, error) {
	if oldest == nil || strings.TrimSpace(*oldest) == "" {
		return nil, nil
	}
	secs, err := strconv.ParseFloat(*oldest, 64)
	if err != nil {
		return nil, fmt.Errorf("github: malformed watermark %q: %w", *oldest, err)
	}
	t := time.Unix(int64(secs), 0).UTC()
	return &t, nil
}

var (
	_ pipeline.ParentGroupDiscoverer = (*Source)(nil)
	_ pipeline.ChunkSplitter         = (*Source)(nil)
)
