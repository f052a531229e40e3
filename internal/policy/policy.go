// Package policy decides whether an observed application or website is
// blocked by the active block rules.
package policy

import (
	"strings"

	"github.com/boscod/trackwatch/internal/models"
)

// Target is the catalog entry being evaluated. Name is the process name for
// applications and the domain for websites.
type Target struct {
	CatalogID  int64
	CategoryID *int64
	Name       string
}

// Actor is the user and machine an event was reported from.
type Actor struct {
	UserID    int64
	MachineID int64
}

// Rule is a block rule reduced to what evaluation needs.
type Rule struct {
	ID         int64
	Scope      models.Scope
	UserID     *int64
	MachineID  *int64
	CatalogID  *int64
	CategoryID *int64
	// Name is compared for equality, or as a substring of the target name
	// when Substring is set.
	Name      string
	Substring bool
	Active    bool
}

// Decision is the outcome of an evaluation. Rule is the first matching
// rule, nil when the target is allowed.
type Decision struct {
	Blocked bool
	Rule    *Rule
}

var scopeOrder = []models.Scope{models.ScopeGlobal, models.ScopeUser, models.ScopeMachine}

// Evaluate checks global rules, then rules for the acting user, then rules for
// the acting machine, and stops at the first active rule that matches.
func Evaluate(rules []Rule, target Target, actor Actor) Decision {
	for _, scope := range scopeOrder {
		for i := range rules {
			r := &rules[i]
			if r.Scope != scope || !r.Active || !r.applies(actor) {
				continue
			}
			if r.matches(target) {
				return Decision{Blocked: true, Rule: r}
			}
		}
	}
	return Decision{}
}

// IsBlocked is Evaluate without the matching rule.
func IsBlocked(rules []Rule, target Target, actor Actor) bool {
	return Evaluate(rules, target, actor).Blocked
}

func (r *Rule) applies(actor Actor) bool {
	switch r.Scope {
	case models.ScopeGlobal:
		return true
	case models.ScopeUser:
		return r.UserID != nil && *r.UserID == actor.UserID
	case models.ScopeMachine:
		return r.MachineID != nil && *r.MachineID == actor.MachineID
	}
	return false
}

func (r *Rule) matches(t Target) bool {
	if r.CatalogID != nil && *r.CatalogID == t.CatalogID {
		return true
	}
	if r.CategoryID != nil && t.CategoryID != nil && *r.CategoryID == *t.CategoryID {
		return true
	}
	if r.Name == "" {
		return false
	}
	if r.Substring {
		return strings.Contains(t.Name, r.Name)
	}
	return r.Name == t.Name
}

// FromApplicationBlocks converts stored application rules.
func FromApplicationBlocks(blocks []models.ApplicationBlock) []Rule {
	rules := make([]Rule, 0, len(blocks))
	for _, b := range blocks {
		rules = append(rules, Rule{
			ID:         b.ID,
			Scope:      b.Scope,
			UserID:     b.UserID,
			MachineID:  b.MachineID,
			CatalogID:  b.ApplicationID,
			CategoryID: b.CategoryID,
			Name:       deref(b.ProcessName),
			Active:     b.IsActive,
		})
	}
	return rules
}

// FromWebsiteBlocks converts stored website rules. Domain patterns match as
// case-sensitive substrings.
func FromWebsiteBlocks(blocks []models.WebsiteBlock) []Rule {
	rules := make([]Rule, 0, len(blocks))
	for _, b := range blocks {
		rules = append(rules, Rule{
			ID:         b.ID,
			Scope:      b.Scope,
			UserID:     b.UserID,
			MachineID:  b.MachineID,
			CatalogID:  b.WebsiteID,
			CategoryID: b.CategoryID,
			Name:       deref(b.DomainPattern),
			Substring:  true,
			Active:     b.IsActive,
		})
	}
	return rules
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
