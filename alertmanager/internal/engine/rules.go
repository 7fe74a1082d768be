package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Rule maps raw device readings onto an alert type. A reading opens
// an alert when its value matches Down and closes one when it matches
// Up. Key and Device narrow which readings the rule applies to.
type Rule struct {
	AlertType string `json:"alertType"`
	Key       string `json:"keyMatches"`
	Device    string `json:"deviceMatches,omitempty"`
	Down      string `json:"downValueMatches"`
	Up        string `json:"upValueMatches"`

	key    *regexp.Regexp
	device *regexp.Regexp
	down   *regexp.Regexp
	up     *regexp.Regexp
}

// DefaultRules returns the built-in rule set used when no rules file
// is configured. It covers the transitions every room reports.
func DefaultRules() []Rule {
	rules := []Rule{
		{AlertType: "Offline", Key: "^(online|responsive)$", Down: "^(false|offline|unreachable)$", Up: "^(true|online)$"},
		{AlertType: "Lost Heartbeat", Key: "^heartbeat$", Down: "^lost$", Up: "^ok$"},
		{AlertType: "System Power Fault", Key: "^system-power$", Down: "^fault$", Up: "^(on|standby)$"},
	}
	for i := range rules {
		if err := rules[i].compile(); err != nil {
			panic(err)
		}
	}
	return rules
}

// LoadRules reads and compiles the rule file. Every rule must carry an
// alert type, a key pattern and both value patterns.
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for i := range rules {
		if err := rules[i].compile(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rules[i].AlertType, err)
		}
	}
	return rules, nil
}

func (r *Rule) compile() error {
	if r.AlertType == "" {
		return fmt.Errorf("alertType is required")
	}
	var err error
	if r.key, err = regexp.Compile(r.Key); err != nil {
		return fmt.Errorf("keyMatches: %w", err)
	}
	if r.Device != "" {
		if r.device, err = regexp.Compile(r.Device); err != nil {
			return fmt.Errorf("deviceMatches: %w", err)
		}
	}
	if r.Down == "" || r.Up == "" {
		return fmt.Errorf("downValueMatches and upValueMatches are required")
	}
	if r.down, err = regexp.Compile(r.Down); err != nil {
		return fmt.Errorf("downValueMatches: %w", err)
	}
	if r.up, err = regexp.Compile(r.Up); err != nil {
		return fmt.Errorf("upValueMatches: %w", err)
	}
	return nil
}

// Applies reports whether the rule covers this reading.
func (r *Rule) Applies(deviceID string, key string) bool {
	if !r.key.MatchString(key) {
		return false
	}
	if r.device != nil && !r.device.MatchString(deviceID) {
		return false
	}
	return true
}

func (r *Rule) Opens(value string) bool {
	return r.down.MatchString(value)
}

func (r *Rule) Closes(value string) bool {
	return r.up.MatchString(value)
}
