package view

import (
	"strings"

	"av-ops-console/shared/issues"
)

// separator joins the flattened search fields. It never appears in real
// room or device data, so a token can never match across field
// boundaries.
const separator = "◬"

// emptyQuery stands in for the empty search box. It is the same marker
// as separator, which no trimmed user token can equal, so an empty
// query matches every issue.
const emptyQuery = separator

const maxFilterTokens = 10

// Filter holds the dashboard's search state.
type Filter struct {
	Query           string
	ShowMaintenance bool
}

// Apply returns the issues that satisfy the filter. The maintenance
// switch is evaluated first: with ShowMaintenance off, issues flagged
// on maintenance never appear no matter what the query says. Queries
// split on spaces; only the first 10 tokens count and the rest are
// ignored. Each token narrows the previous result, so multiple
// tokens combine as a logical AND. A
// token starting with '-' excludes issues whose flattened fields
// contain the remainder.
func (f Filter) Apply(in []issues.Issue) []issues.Issue {
	out := make([]issues.Issue, 0, len(in))
	for _, issue := range in {
		if !f.ShowMaintenance && issue.OnMaintenance {
			continue
		}
		out = append(out, issue)
	}

	for _, token := range f.tokens() {
		kept := out[:0]
		for _, issue := range out {
			if matchToken(issue, token) {
				kept = append(kept, issue)
			}
		}
		out = kept
	}
	return out
}

// Matches reports whether a single issue passes the filter. It mirrors
// Apply for callers that test one issue at a time.
func (f Filter) Matches(issue issues.Issue) bool {
	if !f.ShowMaintenance && issue.OnMaintenance {
		return false
	}
	for _, token := range f.tokens() {
		if !matchToken(issue, token) {
			return false
		}
	}
	return true
}

func (f Filter) tokens() []string {
	if f.Query == "" {
		return []string{emptyQuery}
	}
	split := strings.Split(f.Query, " ")
	// Tokens past the cap are dropped, not folded into the last one.
	if len(split) > maxFilterTokens {
		split = split[:maxFilterTokens]
	}
	tokens := make([]string, 0, len(split))
	for _, token := range split {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func matchToken(issue issues.Issue, token string) bool {
	if token == emptyQuery {
		return true
	}
	searchable := flatten(issue)
	if strings.HasPrefix(token, "-") {
		needle := strings.ToLower(strings.TrimSpace(token[1:]))
		return !strings.Contains(searchable, needle)
	}
	return strings.Contains(searchable, strings.ToLower(strings.TrimSpace(token)))
}

// flatten builds the lowercase searchable projection of an issue: room
// id and name, then device id, device name, and alert type for every
// alert still present on the issue, resolved or not.
func flatten(issue issues.Issue) string {
	fields := []string{
		strings.ToLower(issue.Room.ID),
		strings.ToLower(issue.Room.Name),
	}
	for _, id := range sortedAlertIDs(issue.Alerts) {
		alert := issue.Alerts[id]
		fields = append(fields,
			strings.ToLower(alert.Device.ID),
			strings.ToLower(alert.Device.Name),
			strings.ToLower(alert.Type),
		)
	}
	return strings.Join(fields, separator)
}
