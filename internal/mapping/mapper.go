// Package mapping computes, for every source folder, the folder it lands
// in on the destination server: user redirections first, then special-use
// linking, then destination-root placement.
package mapping

import (
	"fmt"
	"strings"

	"github.com/pepperpark/imapcopy/internal/imaputil"
)

// Rule redirects one source folder path to a destination path. A Source
// ending in '*' matches every source folder sharing the prefix. Matching
// is case-sensitive and covers the full path, never a substring.
type Rule struct {
	Source      string
	Destination string
}

// ParseRule parses the CLI form "<source-path>:<destination-path>".
func ParseRule(s string) (Rule, error) {
	src, dst, ok := strings.Cut(s, ":")
	if !ok || src == "" || dst == "" {
		return Rule{}, fmt.Errorf("could not parse redirection %q (expected source:destination)", s)
	}
	return Rule{Source: src, Destination: dst}, nil
}

// Config carries the user-supplied mapping policy.
type Config struct {
	Rules                []Rule
	DestinationRoot      string
	DestinationRootMerge bool
	LinkSpecialUse       bool
}

// Mapper resolves destination paths for source folders. It is built once
// per run from the pre-scan folder snapshots and never re-evaluated.
type Mapper struct {
	cfg      Config
	rules    []Rule // wildcard-expanded, configuration order preserved
	special  map[string]string
	srcDelim string
	dstDelim string
}

// New expands wildcard rules against the source tree and indexes the
// destination's special-use folders. A rule whose source matches no
// scanned folder is a configuration error.
func New(cfg Config, source, destination []*imaputil.FolderNode) (*Mapper, error) {
	m := &Mapper{cfg: cfg, special: make(map[string]string)}
	for _, f := range source {
		if m.srcDelim == "" && f.Delimiter != "" {
			m.srcDelim = f.Delimiter
		}
	}
	for _, f := range destination {
		if m.dstDelim == "" && f.Delimiter != "" {
			m.dstDelim = f.Delimiter
		}
		if f.SpecialUse != "" {
			if _, dup := m.special[f.SpecialUse]; !dup {
				m.special[f.SpecialUse] = f.Path
			}
		}
	}

	for _, rule := range cfg.Rules {
		if prefix, ok := strings.CutSuffix(rule.Source, "*"); ok {
			matched := false
			for _, f := range source {
				if strings.HasPrefix(f.Path, prefix) {
					m.rules = append(m.rules, Rule{Source: f.Path, Destination: rule.Destination})
					matched = true
				}
			}
			if !matched {
				return nil, fmt.Errorf("redirection source folder not found: %s", rule.Source)
			}
			continue
		}
		found := false
		for _, f := range source {
			if f.Path == rule.Source {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("redirection source folder not found: %s", rule.Source)
		}
		m.rules = append(m.rules, rule)
	}
	return m, nil
}

// Resolve returns the destination path for a source folder. Redirections
// are evaluated before root placement, so a redirected destination is
// never re-prefixed with the destination root.
func (m *Mapper) Resolve(f *imaputil.FolderNode) string {
	for _, rule := range m.rules {
		if rule.Source == f.Path {
			return rule.Destination
		}
	}
	if m.cfg.LinkSpecialUse && f.SpecialUse != "" {
		if path, ok := m.special[f.SpecialUse]; ok {
			return path
		}
	}
	path := m.Translate(f.Path)
	if root := m.cfg.DestinationRoot; root != "" {
		delim := m.dstDelim
		if delim == "" {
			delim = "."
		}
		if m.cfg.DestinationRootMerge &&
			(path == root || strings.HasPrefix(path, root+delim)) {
			return path
		}
		return root + delim + path
	}
	return path
}

// Translate re-splits a source-side path on the destination's hierarchy
// delimiter. Servers routinely disagree on delimiters ('.' vs '/').
func (m *Mapper) Translate(path string) string {
	if m.srcDelim == "" || m.dstDelim == "" || m.srcDelim == m.dstDelim {
		return path
	}
	return strings.ReplaceAll(path, m.srcDelim, m.dstDelim)
}
