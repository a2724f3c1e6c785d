// Package filter selects which entries a tree copy includes, using ordered
// rsync-style include/exclude glob rules plus optional size bounds.
package filter

import (
	"fmt"
	"strconv"
	"strings"
)

type rule struct {
	pattern *pattern
	include bool
}

// Chain holds an ordered list of include/exclude rules plus size filters.
// The zero value (or an empty chain) includes everything.
type Chain struct {
	rules   []rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude appends an exclude rule for the given glob pattern.
func (c *Chain) AddExclude(glob string) error {
	p, err := compile(glob)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, rule{pattern: p})
	return nil
}

// AddInclude appends an include rule for the given glob pattern.
func (c *Chain) AddInclude(glob string) error {
	p, err := compile(glob)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, rule{pattern: p, include: true})
	return nil
}

// SetMinSize excludes regular files smaller than n bytes.
func (c *Chain) SetMinSize(n int64) { c.minSize = n }

// SetMaxSize excludes regular files larger than n bytes.
func (c *Chain) SetMaxSize(n int64) { c.maxSize = n }

// Empty reports whether the chain has no rules and no size bounds.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0
}

// Match reports whether the entry at relPath should be included. Rules are
// evaluated in order, first match wins; no match includes. Size bounds
// apply only to non-directories.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}

	for _, r := range c.rules {
		if r.pattern.match(relPath, isDir) {
			return r.include
		}
	}
	return true
}

// ParseSize parses a human-readable size such as 512, 100K, 4M, 2G or 1T
// into bytes, using powers of 1024.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	num := s
	switch strings.ToUpper(s[len(s)-1:]) {
	case "B":
		num = s[:len(s)-1]
	case "K":
		multiplier, num = 1<<10, s[:len(s)-1]
	case "M":
		multiplier, num = 1<<20, s[:len(s)-1]
	case "G":
		multiplier, num = 1<<30, s[:len(s)-1]
	case "T":
		multiplier, num = 1<<40, s[:len(s)-1]
	}
	if num == "" {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		return n * multiplier, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(f * float64(multiplier)), nil
}
