package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/boxharvest/internal/fetcher"
	"github.com/IshaanNene/boxharvest/internal/types"
)

// RobotsPolicy answers whether a listing URL may be fetched according to the
// host's robots.txt. Rules are fetched once per host through the harvest
// fetcher and cached.
type RobotsPolicy struct {
	fetcher fetcher.Fetcher
	agent   string
	cache   map[string]*robotsRules
	mu      sync.Mutex
	logger  *slog.Logger
}

// robotsRules holds the rules of the group that applies to us.
type robotsRules struct {
	disallowed []string
	allowed    []string
	crawlDelay time.Duration
}

// NewRobotsPolicy creates a policy for the given product token.
func NewRobotsPolicy(f fetcher.Fetcher, agent string, logger *slog.Logger) *RobotsPolicy {
	return &RobotsPolicy{
		fetcher: f,
		agent:   strings.ToLower(agent),
		cache:   make(map[string]*robotsRules),
		logger:  logger.With("component", "robots"),
	}
}

// Allowed reports whether rawURL may be fetched and the crawl delay the host
// asks for. An unreachable or missing robots.txt allows everything.
func (p *RobotsPolicy) Allowed(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}

	rules, err := p.rulesFor(ctx, u)
	if err != nil {
		return false, 0, err
	}
	if rules == nil {
		return true, 0, nil
	}

	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}

	// Allow lines take precedence over disallow lines.
	for _, pattern := range rules.allowed {
		if matchRobotsPattern(pattern, target) {
			return true, rules.crawlDelay, nil
		}
	}
	for _, pattern := range rules.disallowed {
		if matchRobotsPattern(pattern, target) {
			return false, rules.crawlDelay, nil
		}
	}
	return true, rules.crawlDelay, nil
}

func (p *RobotsPolicy) rulesFor(ctx context.Context, u *url.URL) (*robotsRules, error) {
	origin := u.Scheme + "://" + u.Host

	p.mu.Lock()
	rules, ok := p.cache[origin]
	p.mu.Unlock()
	if ok {
		return rules, nil
	}

	req, err := types.NewRequest(origin + "/robots.txt")
	if err != nil {
		return nil, err
	}
	resp, err := p.fetcher.Fetch(ctx, req)
	switch {
	case err == nil:
		rules = parseRobotsTxt(string(resp.Body), p.agent)
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %w", types.ErrHarvestStopped, ctx.Err())
	default:
		var fe *types.FetchError
		if !errors.As(err, &fe) || fe.StatusCode != 404 {
			p.logger.Warn("robots.txt unavailable, allowing all", "origin", origin, "error", err)
		}
		rules = nil
	}

	p.mu.Lock()
	p.cache[origin] = rules
	p.mu.Unlock()
	return rules, nil
}

// parseRobotsTxt collects the rules of the groups addressed to agent or "*".
func parseRobotsTxt(content, agent string) *robotsRules {
	data := &robotsRules{}
	inOurSection := false
	lastWasAgent := false

	for _, line := range strings.Split(content, "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			ua := strings.ToLower(value)
			match := ua == "*" || (agent != "" && strings.Contains(ua, agent))
			// Consecutive user-agent lines share one group.
			if lastWasAgent {
				inOurSection = inOurSection || match
			} else {
				inOurSection = match
			}
			lastWasAgent = true
			continue
		case "disallow":
			if inOurSection && value != "" {
				data.disallowed = append(data.disallowed, value)
			}
		case "allow":
			if inOurSection && value != "" {
				data.allowed = append(data.allowed, value)
			}
		case "crawl-delay":
			if inOurSection {
				var delay float64
				if _, err := fmt.Sscanf(value, "%f", &delay); err == nil && delay > 0 {
					data.crawlDelay = time.Duration(delay * float64(time.Second))
				}
			}
		}
		lastWasAgent = false
	}

	return data
}

// matchRobotsPattern checks if a path (with query) matches a robots.txt
// pattern. Supports * (any sequence) and a trailing $ anchor.
func matchRobotsPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	mustEnd := strings.HasSuffix(pattern, "$")
	pattern = strings.TrimSuffix(pattern, "$")

	if !strings.Contains(pattern, "*") {
		if mustEnd {
			return path == pattern
		}
		return strings.HasPrefix(path, pattern)
	}

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	pos := len(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}

	if mustEnd {
		// The last literal must sit at the very end.
		last := parts[len(parts)-1]
		return last == "" || strings.HasSuffix(path, last)
	}
	return true
}
