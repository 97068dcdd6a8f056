package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// MissingAttr is the value an absent attribute is matched as. It differs
// from the empty string so that href="" and no href stay distinguishable.
const MissingAttr = "None"

// Predicate decides whether a node is kept.
type Predicate interface {
	Match(n *html.Node) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(n *html.Node) bool

// Match implements Predicate.
func (f PredicateFunc) Match(n *html.Node) bool { return f(n) }

// Walk visits n and every descendant in document order.
func Walk(n *html.Node, visit func(*html.Node)) {
	if n == nil {
		return
	}
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, visit)
	}
}

// Collect returns every node under root (root included) that satisfies p,
// in document order.
func Collect(root *html.Node, p Predicate) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) {
		if p.Match(n) {
			out = append(out, n)
		}
	})
	return out
}

// TagIs matches element nodes with the given name.
func TagIs(tag string) Predicate {
	tag = strings.ToLower(tag)
	return PredicateFunc(func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	})
}

// AttrMatches runs re against the attribute value. Absent attributes are
// matched as MissingAttr.
func AttrMatches(name string, re *regexp.Regexp) Predicate {
	name = strings.ToLower(name)
	return PredicateFunc(func(n *html.Node) bool {
		v, ok := attrValue(n, name)
		if !ok {
			v = MissingAttr
		}
		return re.MatchString(v)
	})
}

// AttrPresentMatching is like AttrMatches but never matches a node that
// lacks the attribute.
func AttrPresentMatching(name string, re *regexp.Regexp) Predicate {
	name = strings.ToLower(name)
	return PredicateFunc(func(n *html.Node) bool {
		v, ok := attrValue(n, name)
		return ok && re.MatchString(v)
	})
}

// HasDescendant matches nodes with at least one strict descendant satisfying p.
func HasDescendant(p Predicate) Predicate {
	var found func(n *html.Node) bool
	found = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if p.Match(c) || found(c) {
				return true
			}
		}
		return false
	}
	return PredicateFunc(found)
}

// And matches when every predicate matches.
func And(ps ...Predicate) Predicate {
	return PredicateFunc(func(n *html.Node) bool {
		for _, p := range ps {
			if !p.Match(n) {
				return false
			}
		}
		return true
	})
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return PredicateFunc(func(n *html.Node) bool { return !p.Match(n) })
}

func attrValue(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
