package keys

import (
	"fmt"
	"net/url"
	"strings"
)

type ConceptKeyParts struct {
	Owner  string
	Source string
	ID     string
}

type MappingKeyParts struct {
	Owner   string
	Source  string
	MapType string
	FromURL string
	ToURL   string
}

type RefKeyParts struct {
	Owner      string
	Collection string
	// Kind is "concept" or "mapping"
	Kind string
	URL  string
}

// splitPath returns the unescaped segments of an absolute, slash terminated path.
func splitPath(p string) ([]string, error) {
	if !strings.HasPrefix(p, "/") || !strings.HasSuffix(p, "/") {
		return nil, fmt.Errorf("path must start and end with '/': %q", p)
	}
	raw := strings.Split(strings.Trim(p, "/"), "/")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r == "" {
			return nil, fmt.Errorf("empty path segment: %q", p)
		}
		s, err := url.PathUnescape(r)
		if err != nil {
			return nil, fmt.Errorf("bad path segment %q: %w", r, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func ParseConceptKey(key string) (*ConceptKeyParts, error) {
	parts, err := splitPath(key)
	if err != nil {
		return nil, err
	}
	if len(parts) != 6 || parts[0] != orgsSegment || parts[2] != sourcesSegment || parts[4] != conceptsSegment {
		return nil, fmt.Errorf("invalid concept key format: %q", key)
	}
	return &ConceptKeyParts{Owner: parts[1], Source: parts[3], ID: parts[5]}, nil
}

// CanonicalConceptURL drops a trailing version segment, so versioned urls
// coming out of collection exports resolve to the same concept key.
func CanonicalConceptURL(u string) (string, error) {
	if strings.ContainsAny(u, "?#") {
		return "", fmt.Errorf("invalid concept url: %q", u)
	}
	if u != "" && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	parts, err := splitPath(u)
	if err != nil {
		return "", err
	}
	if len(parts) < 6 || len(parts) > 7 || parts[0] != orgsSegment || parts[2] != sourcesSegment || parts[4] != conceptsSegment {
		return "", fmt.Errorf("invalid concept url: %q", u)
	}
	return ConceptKey(parts[1], parts[3], parts[5]), nil
}

func ParseMappingKey(key string) (*MappingKeyParts, error) {
	path, query, ok := strings.Cut(key, "?")
	if !ok {
		return nil, fmt.Errorf("invalid mapping key format: %q", key)
	}
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(parts) != 5 || parts[0] != orgsSegment || parts[2] != sourcesSegment || parts[4] != mappingsSegment {
		return nil, fmt.Errorf("invalid mapping key format: %q", key)
	}
	vals, err := parseQuery(query, "from", "maptype", "to")
	if err != nil {
		return nil, fmt.Errorf("invalid mapping key %q: %w", key, err)
	}
	return &MappingKeyParts{Owner: parts[1], Source: parts[3], FromURL: vals[0], MapType: vals[1], ToURL: vals[2]}, nil
}

func ParseRefKey(key string) (*RefKeyParts, error) {
	path, query, ok := strings.Cut(key, "?")
	if !ok {
		return nil, fmt.Errorf("invalid reference key format: %q", key)
	}
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(parts) != 5 || parts[0] != orgsSegment || parts[2] != collectionsSegment || parts[4] != referencesSegment {
		return nil, fmt.Errorf("invalid reference key format: %q", key)
	}
	kind, _, _ := strings.Cut(query, "=")
	if kind != "concept" && kind != "mapping" {
		return nil, fmt.Errorf("invalid reference kind %q in %q", kind, key)
	}
	vals, err := parseQuery(query, kind)
	if err != nil {
		return nil, fmt.Errorf("invalid reference key %q: %w", key, err)
	}
	return &RefKeyParts{Owner: parts[1], Collection: parts[3], Kind: kind, URL: vals[0]}, nil
}

// parseQuery reads name=value pairs in exactly the given order.
func parseQuery(q string, names ...string) ([]string, error) {
	pairs := strings.Split(q, "&")
	if len(pairs) != len(names) {
		return nil, fmt.Errorf("expected %d query values, got %d", len(names), len(pairs))
	}
	out := make([]string, len(names))
	for i, p := range pairs {
		name, val, ok := strings.Cut(p, "=")
		if !ok || name != names[i] {
			return nil, fmt.Errorf("expected %q at position %d", names[i], i)
		}
		out[i] = queryUnescaper.Replace(val)
	}
	return out, nil
}
