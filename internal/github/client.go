// Package github implements the GraphQL search client for the GitHub API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/oss-observatory/starcrawler/internal/crawler"
)

var tracer = otel.Tracer("github.com/oss-observatory/starcrawler/internal/github")

const (
	defaultEndpoint = "https://api.github.com/graphql"
	defaultTimeout  = 30 * time.Second
	maxPageSize     = 100
)

// searchDocument is the GraphQL query sent for every page. The rateLimit
// block rides along so each response reports the remaining quota.
const searchDocument = `
query SearchRepos($query: String!, $first: Int!, $after: String) {
  rateLimit {
    remaining
    resetAt
    cost
  }
  search(query: $query, type: REPOSITORY, first: $first, after: $after) {
    repositoryCount
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {
      ... on Repository {
        id
        nameWithOwner
        name
        owner { login }
        description
        primaryLanguage { name }
        isPrivate
        stargazerCount
        createdAt
        updatedAt
      }
    }
  }
}
`

// Config captures the parameters required to reach the GitHub API.
type Config struct {
	Token          string
	Endpoint       string
	PageSize       int
	RequestTimeout time.Duration
	UserAgent      string
}

// Pacer gates outbound requests; the ratelimit package satisfies it.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Client posts search queries to the GraphQL endpoint and maps responses
// into domain types. It performs no retries; resilience lives in the
// fetcher wrapping it.
type Client struct {
	httpClient *http.Client
	endpoint   string
	pageSize   int
	userAgent  string
	pacer      Pacer
	clock      crawler.Clock
	logger     *zap.Logger
}

// NewClient builds a search client. The token is carried by an oauth2
// transport; pacer may be nil to disable request pacing.
func NewClient(cfg Config, pacer Pacer, clock crawler.Clock, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), src)
		httpClient.Timeout = timeout
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		pageSize:   pageSize,
		userAgent:  cfg.UserAgent,
		pacer:      pacer,
		clock:      clock,
		logger:     logger,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type rateLimitInfo struct {
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
	Cost      int    `json:"cost"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type repoNode struct {
	ID            string `json:"id"`
	NameWithOwner string `json:"nameWithOwner"`
	Name          string `json:"name"`
	Owner         *struct {
		Login string `json:"login"`
	} `json:"owner"`
	Description     string `json:"description"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	IsPrivate      bool   `json:"isPrivate"`
	StargazerCount int    `json:"stargazerCount"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

type searchEnvelope struct {
	Data *struct {
		RateLimit *rateLimitInfo `json:"rateLimit"`
		Search    *struct {
			RepositoryCount int        `json:"repositoryCount"`
			PageInfo        pageInfo   `json:"pageInfo"`
			Nodes           []repoNode `json:"nodes"`
		} `json:"search"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// Search fetches one page of results for the predicate. The error is one of
// the typed crawler errors so the fetcher can classify it without string
// matching.
func (c *Client) Search(ctx context.Context, predicate crawler.SearchPredicate, cursor crawler.PageCursor) (crawler.Page, error) {
	ctx, span := tracer.Start(ctx, "github.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.query", predicate.Query),
		attribute.Bool("search.continuation", cursor != ""),
	)

	page, err := c.search(ctx, predicate, cursor)
	if err != nil {
		span.RecordError(err)
		return crawler.Page{}, err
	}
	span.SetAttributes(
		attribute.Int("search.records", len(page.Records)),
		attribute.Int("ratelimit.remaining", page.RateLimitRemaining),
	)
	return page, nil
}

func (c *Client) search(ctx context.Context, predicate crawler.SearchPredicate, cursor crawler.PageCursor) (crawler.Page, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, c.endpoint); err != nil {
			return crawler.Page{}, err
		}
	}

	variables := map[string]any{
		"query": predicate.Query,
		"first": c.pageSize,
	}
	if cursor != "" {
		variables["after"] = string(cursor)
	} else {
		variables["after"] = nil
	}
	body, err := json.Marshal(graphQLRequest{Query: searchDocument, Variables: variables})
	if err != nil {
		return crawler.Page{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return crawler.Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Opt in to the stable global node ID format.
	req.Header.Set("X-Github-Next-Global-ID", "1")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.Page{}, ctx.Err()
		}
		return crawler.Page{}, &crawler.TransientError{Op: "post graphql", Err: err}
	}
	defer resp.Body.Close()

	if page, handled, err := c.classifyStatus(resp); handled {
		return page, err
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return crawler.Page{}, &crawler.MalformedResponseError{Detail: fmt.Sprintf("decode response: %v", err)}
	}
	return c.mapEnvelope(predicate, envelope)
}

// classifyStatus maps non-200 responses onto typed errors. handled is false
// for responses the caller should keep decoding.
func (c *Client) classifyStatus(resp *http.Response) (crawler.Page, bool, error) {
	if resp.StatusCode == http.StatusOK {
		return crawler.Page{}, false, nil
	}
	detail := readBodyPrefix(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return crawler.Page{}, true, &crawler.AuthError{Status: resp.StatusCode, Detail: detail}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		rl := &crawler.RateLimitedError{Remaining: 0, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
		if after := resp.Header.Get("Retry-After"); after != "" {
			if secs, err := strconv.Atoi(after); err == nil {
				rl.ResetAt = c.clock.Now().Add(time.Duration(secs) * time.Second)
			}
		}
		return crawler.Page{}, true, rl
	default:
		return crawler.Page{}, true, &crawler.TransientError{
			Op:  "post graphql",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, detail),
		}
	}
}

// mapEnvelope translates the decoded response into a Page, skipping nodes
// that lack the required identity fields.
func (c *Client) mapEnvelope(predicate crawler.SearchPredicate, envelope searchEnvelope) (crawler.Page, error) {
	for _, gqlErr := range envelope.Errors {
		if gqlErr.Type == "RATE_LIMITED" {
			rl := &crawler.RateLimitedError{Remaining: 0, Detail: gqlErr.Message}
			if envelope.Data != nil && envelope.Data.RateLimit != nil {
				rl.Remaining = envelope.Data.RateLimit.Remaining
				rl.ResetAt = parseTimestamp(envelope.Data.RateLimit.ResetAt)
			}
			return crawler.Page{}, rl
		}
	}
	if len(envelope.Errors) > 0 && (envelope.Data == nil || envelope.Data.Search == nil) {
		messages := make([]string, 0, len(envelope.Errors))
		for _, gqlErr := range envelope.Errors {
			messages = append(messages, gqlErr.Message)
		}
		return crawler.Page{}, &crawler.TransientError{
			Op:  "graphql",
			Err: fmt.Errorf("%s", strings.Join(messages, "; ")),
		}
	}
	if envelope.Data == nil || envelope.Data.Search == nil {
		return crawler.Page{}, &crawler.MalformedResponseError{Detail: "response lacks search data"}
	}
	if len(envelope.Errors) > 0 {
		c.logger.Warn("partial graphql response",
			zap.String("query", predicate.Query),
			zap.Int("errors", len(envelope.Errors)),
			zap.String("first", envelope.Errors[0].Message))
	}

	search := envelope.Data.Search
	fetchedAt := c.clock.Now().UTC()
	records := make([]crawler.Record, 0, len(search.Nodes))
	malformed := 0
	for _, node := range search.Nodes {
		if node.ID == "" || node.NameWithOwner == "" || node.Name == "" || node.Owner == nil || node.Owner.Login == "" {
			malformed++
			c.logger.Debug("skipping malformed node", zap.String("id", node.ID), zap.String("query", predicate.Query))
			continue
		}
		rec := crawler.Record{
			ID:            node.ID,
			NameWithOwner: node.NameWithOwner,
			Name:          node.Name,
			Owner:         node.Owner.Login,
			Description:   node.Description,
			Private:       node.IsPrivate,
			Stars:         node.StargazerCount,
			CreatedAt:     parseTimestamp(node.CreatedAt),
			UpdatedAt:     parseTimestamp(node.UpdatedAt),
			FetchedAt:     fetchedAt,
		}
		if node.PrimaryLanguage != nil {
			rec.Language = node.PrimaryLanguage.Name
		}
		records = append(records, rec)
	}

	page := crawler.Page{
		Records:            records,
		NextCursor:         crawler.PageCursor(search.PageInfo.EndCursor),
		HasNextPage:        search.PageInfo.HasNextPage,
		TotalMatches:       search.RepositoryCount,
		RateLimitRemaining: -1,
		Malformed:          malformed,
	}
	if envelope.Data.RateLimit != nil {
		page.RateLimitRemaining = envelope.Data.RateLimit.Remaining
		page.RateLimitResetAt = parseTimestamp(envelope.Data.RateLimit.ResetAt)
	}
	return page, nil
}

func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// readBodyPrefix drains up to 512 bytes of a response body for error detail.
func readBodyPrefix(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
