package gateway

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	greedyParam = regexp.MustCompile(`\{([^{}/]+?)\+\}`)
	namedParam  = regexp.MustCompile(`\{([^{}/]+?)\}`)
)

// NormalizePath converts a trigger path template into router syntax.
// {name+} becomes *name, {name} becomes :name, slashes are collapsed to a
// single leading slash and a trailing slash is dropped. A non-empty stage is
// prepended as the first segment. Parameter names may hold anything but
// braces and slashes.
func NormalizePath(stage, template string) string {
	path := greedyParam.ReplaceAllString(template, "*$1")
	path = namedParam.ReplaceAllString(path, ":$1")

	segments := make([]string, 0, 8)
	if stage != "" {
		segments = append(segments, stage)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return "/" + strings.Join(segments, "/")
}

type segmentKind int

const (
	segmentLiteral segmentKind = iota
	segmentParam
	segmentCatchAll
)

type segment struct {
	kind  segmentKind
	value string
}

// pattern is a compiled route path.
type pattern struct {
	raw      string
	segments []segment
}

// compilePattern compiles a normalized path. A catch-all must be the last
// segment.
func compilePattern(path string) (*pattern, error) {
	p := &pattern{raw: path}

	parts := splitPath(path)
	for i, part := range parts {
		switch {
		case strings.HasPrefix(part, ":"):
			if len(part) == 1 {
				return nil, fmt.Errorf("route %s: empty parameter name", path)
			}
			p.segments = append(p.segments, segment{kind: segmentParam, value: part[1:]})
		case strings.HasPrefix(part, "*"):
			if len(part) == 1 {
				return nil, fmt.Errorf("route %s: empty wildcard name", path)
			}
			if i != len(parts)-1 {
				return nil, fmt.Errorf("route %s: wildcard must be the last segment", path)
			}
			p.segments = append(p.segments, segment{kind: segmentCatchAll, value: part[1:]})
		default:
			p.segments = append(p.segments, segment{kind: segmentLiteral, value: part})
		}
	}
	return p, nil
}

// match matches an escaped request path. Literals compare case-insensitively,
// a single trailing slash is tolerated and parameter values are decoded.
func (p *pattern) match(escaped string) (map[string]string, bool) {
	parts := splitPath(strings.TrimSuffix(escaped, "/"))
	params := make(map[string]string)

	for i, seg := range p.segments {
		if seg.kind == segmentCatchAll {
			params[seg.value] = decode(strings.Join(parts[i:], "/"))
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		switch seg.kind {
		case segmentLiteral:
			if !strings.EqualFold(parts[i], seg.value) {
				return nil, false
			}
		case segmentParam:
			if parts[i] == "" {
				return nil, false
			}
			params[seg.value] = decode(parts[i])
		}
	}

	if len(parts) != len(p.segments) {
		return nil, false
	}
	return params, true
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func decode(s string) string {
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}
