package filter

import (
	"regexp"
	"strings"
)

// pattern is a compiled rsync-style glob. A trailing slash restricts the
// rule to directories; a pattern containing a slash is anchored at the copy
// root, a bare name matches any path component.
type pattern struct {
	re      *regexp.Regexp
	dirOnly bool
}

func compile(glob string) (*pattern, error) {
	p := &pattern{}

	if strings.HasSuffix(glob, "/") {
		p.dirOnly = true
		glob = strings.TrimSuffix(glob, "/")
	}

	anchored := strings.Contains(glob, "/")
	glob = strings.TrimPrefix(glob, "/")

	expr := globToRegex(glob)
	if anchored {
		expr = "^" + expr + "$"
	} else {
		expr = "(^|/)" + expr + "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	p.re = re
	return p, nil
}

func (p *pattern) match(relPath string, isDir bool) bool {
	if p.dirOnly && !isDir {
		return false
	}
	return p.re.MatchString(relPath)
}

// globToRegex converts one glob to a regular expression. `**` crosses path
// separators, `*` and `?` do not; character classes pass through.
func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); {
		switch c := glob[i]; c {
		case '*':
			if strings.HasPrefix(glob[i:], "**/") {
				b.WriteString("(.*/)?")
				i += 3
			} else if strings.HasPrefix(glob[i:], "**") {
				b.WriteString(".*")
				i += 2
			} else {
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			j := i + 1
			if j < len(glob) && glob[j] == '!' {
				j++
			}
			if j < len(glob) && glob[j] == ']' {
				j++
			}
			for j < len(glob) && glob[j] != ']' {
				j++
			}
			if j < len(glob) {
				class := glob[i+1 : j]
				if strings.HasPrefix(class, "!") {
					class = "^" + class[1:]
				}
				b.WriteString("[" + class + "]")
				i = j + 1
			} else {
				b.WriteString(regexp.QuoteMeta("["))
				i++
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String()
}
