package parser

import (
	"log/slog"

	"golang.org/x/net/html"

	"github.com/IshaanNene/boxharvest/internal/types"
)

// Result is the outcome of one match pass.
type Result struct {
	// Elements are the surviving matches in document order.
	Elements []Element

	// Excluded counts include matches removed by the exclusion rule.
	Excluded int
}

// Matcher selects the elements that feed one column.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a new element matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{
		logger: logger.With("component", "matcher"),
	}
}

// Match scans doc in document order for elements satisfying rule, then drops
// those caught by rule.Exclude. No match is an empty result, not an error.
func (m *Matcher) Match(doc *Document, rule Rule) (*Result, error) {
	include, err := rule.Include()
	if err != nil {
		return nil, &types.ParseError{URL: doc.URL(), Selector: rule.Selector(), Err: err}
	}

	var nodes []*html.Node
	if rule.XPath != "" {
		candidates, err := queryXPath(doc.Root(), rule.XPath)
		if err != nil {
			return nil, &types.ParseError{URL: doc.URL(), Selector: rule.Selector(), Err: err}
		}
		for _, n := range candidates {
			if include.Match(n) {
				nodes = append(nodes, n)
			}
		}
	} else {
		nodes = Collect(doc.Root(), include)
	}

	elements := make([]Element, len(nodes))
	for i, n := range nodes {
		elements[i] = Element{Node: n}
	}

	res := &Result{Elements: elements}
	if rule.Exclude != nil {
		kept, err := Exclude(elements, *rule.Exclude)
		if err != nil {
			return nil, &types.ParseError{URL: doc.URL(), Selector: rule.Selector(), Err: err}
		}
		res.Excluded = len(elements) - len(kept)
		res.Elements = kept
	}

	m.logger.Debug("rule matched",
		"rule", rule.Name,
		"selector", rule.Selector(),
		"matched", len(res.Elements),
		"excluded", res.Excluded,
	)
	return res, nil
}

// Exclude returns the elements that do not contain a descendant caught by x.
// Relative order is preserved.
func Exclude(elements []Element, x ExcludeRule) ([]Element, error) {
	drop, err := x.Predicate()
	if err != nil {
		return nil, err
	}
	kept := make([]Element, 0, len(elements))
	for _, e := range elements {
		if !drop.Match(e.Node) {
			kept = append(kept, e)
		}
	}
	return kept, nil
}
