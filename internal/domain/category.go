package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

type CategoryTag string

const (
	CategorySleepers CategoryTag = "sleepers"
	CategorySteel    CategoryTag = "steel"
	CategoryPlinths  CategoryTag = "plinths"
	CategorySteps    CategoryTag = "steps"
	CategoryEdging   CategoryTag = "edging"
	CategoryHardware CategoryTag = "hardware"
	CategoryGeneral  CategoryTag = "general"
)

// Category is resolved once when a product enters the catalog. Tag is the
// closed classification used for rules; Label keeps the supplier's wording.
type Category struct {
	Tag   CategoryTag `json:"tag"`
	Label string      `json:"label"`
}

// categoryRules is evaluated in order; the first keyword found in the folded
// label decides the tag.
var categoryRules = []struct {
	keywords []string
	tag      CategoryTag
}{
	{keywords: []string{"steel", "galv", "beam", "channel"}, tag: CategorySteel},
	{keywords: []string{"sleeper"}, tag: CategorySleepers},
	{keywords: []string{"plinth", "ufp"}, tag: CategoryPlinths},
	{keywords: []string{"step"}, tag: CategorySteps},
	{keywords: []string{"edging", "edge", "wheel"}, tag: CategoryEdging},
	{keywords: []string{"hardware", "bracket", "bolt", "fixing"}, tag: CategoryHardware},
}

// foldText builds a fresh Caser per call since a Caser keeps state.
func foldText(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func ResolveCategory(raw string) Category {
	label := strings.TrimSpace(raw)
	if label == "" {
		label = "General"
	}
	folded := foldText(label)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(folded, kw) {
				return Category{Tag: rule.tag, Label: label}
			}
		}
	}
	return Category{Tag: CategoryGeneral, Label: label}
}

// MatchText is the folded text discount category filters are matched against.
func (c Category) MatchText() string {
	return string(c.Tag) + " " + foldText(c.Label)
}

// Matches reports whether term is a case-insensitive substring of the
// category's tag or label.
func (c Category) Matches(term string) bool {
	term = foldText(term)
	if term == "" {
		return false
	}
	return strings.Contains(c.MatchText(), term)
}

func (c Category) String() string {
	return c.Label
}

// ParseCategoryList splits a comma separated admin input into trimmed,
// non-empty entries.
func ParseCategoryList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
