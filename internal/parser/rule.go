package parser

import (
	"fmt"
	"regexp"

	"github.com/IshaanNene/boxharvest/internal/config"
)

// Rule is an extraction triple: elements named Tag whose Attr value matches
// Pattern. XPath, when set, replaces the tag scan as the candidate source.
type Rule struct {
	Name    string
	Tag     string
	Attr    string
	Pattern string
	XPath   string
	Exclude *ExcludeRule
}

// ExcludeRule drops matched elements that contain a Tag descendant whose Attr
// value matches Pattern.
type ExcludeRule struct {
	Tag     string
	Attr    string
	Pattern string
}

// RuleFromConfig builds a Rule from its config section.
func RuleFromConfig(name string, fr config.FieldRule) Rule {
	r := Rule{
		Name:    name,
		Tag:     fr.Tag,
		Attr:    fr.Attr,
		Pattern: fr.Pattern,
		XPath:   fr.XPath,
	}
	if fr.Exclude != nil {
		r.Exclude = &ExcludeRule{
			Tag:     fr.Exclude.Tag,
			Attr:    fr.Exclude.Attr,
			Pattern: fr.Exclude.Pattern,
		}
	}
	return r
}

// Selector renders the rule for logs and errors.
func (r Rule) Selector() string {
	if r.XPath != "" {
		return r.XPath
	}
	return fmt.Sprintf("%s[%s~/%s/]", r.Tag, r.Attr, r.Pattern)
}

// Include compiles the include half of the rule.
func (r Rule) Include() (Predicate, error) {
	var ps []Predicate
	if r.Tag != "" {
		ps = append(ps, TagIs(r.Tag))
	}
	if r.Attr != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: invalid pattern: %w", r.Name, err)
		}
		ps = append(ps, AttrMatches(r.Attr, re))
	}
	return And(ps...), nil
}

// Predicate compiles the exclusion rule into a predicate over matched elements.
func (x ExcludeRule) Predicate() (Predicate, error) {
	re, err := regexp.Compile(x.Pattern)
	if err != nil {
		return nil, fmt.Errorf("exclude rule: invalid pattern: %w", err)
	}
	return HasDescendant(And(TagIs(x.Tag), AttrPresentMatching(x.Attr, re))), nil
}
