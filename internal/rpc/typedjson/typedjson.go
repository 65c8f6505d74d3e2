// Package typedjson encodes values as JSON plus a side table of type annotations, so values
// that plain JSON flattens (timestamps, integers beyond 2^53) survive a round trip.
//
// The wire form is
//
//	{"json": <value>, "meta": {"values": {"createdAt": ["Date"], "items.0.size": ["bigint"]}}}
//
// Paths are dot separated; literal dots in keys are escaped as `\.` and the root value has the
// empty path. Dates are written in UTC with millisecond precision; decoding accepts any
// RFC 3339 fraction.
package typedjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	TypeDate   = "Date"
	TypeBigInt = "bigint"
)

// MaxSafeInteger is the largest integer a float64 based client can hold exactly.
const MaxSafeInteger = 1<<53 - 1

const dateLayout = "2006-01-02T15:04:05.000Z07:00"

// Meta holds the type annotations of an Envelope.
type Meta struct {
	Values map[string][]string `json:"values,omitempty"`
}

// Envelope is a JSON value and its annotations.
type Envelope struct {
	JSON json.RawMessage `json:"json"`
	Meta *Meta           `json:"meta,omitempty"`
}

// Decode applies the annotations of env and returns plain JSON suitable for
// encoding/json. A nil envelope decodes to nil.
func Decode(env *Envelope) (json.RawMessage, error) {
	if env == nil || len(bytes.TrimSpace(env.JSON)) == 0 {
		return nil, nil
	}
	if env.Meta == nil || len(env.Meta.Values) == 0 {
		return env.JSON, nil
	}

	dec := json.NewDecoder(bytes.NewReader(env.JSON))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	paths := make([]string, 0, len(env.Meta.Values))
	for p := range env.Meta.Values {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var err error
	for _, p := range paths {
		tree, err = apply(tree, splitPath(p), env.Meta.Values[p])
		if err != nil {
			return nil, fmt.Errorf("annotation %q: %w", p, err)
		}
	}

	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return out, nil
}

func apply(node any, segs []string, types []string) (any, error) {
	if len(segs) == 0 {
		return convert(node, types)
	}
	switch n := node.(type) {
	case map[string]any:
		child, ok := n[segs[0]]
		if !ok {
			return nil, fmt.Errorf("key %q not found", segs[0])
		}
		v, err := apply(child, segs[1:], types)
		if err != nil {
			return nil, err
		}
		n[segs[0]] = v
		return n, nil
	case []any:
		idx, err := strconv.Atoi(segs[0])
		if err != nil || idx < 0 || idx >= len(n) {
			return nil, fmt.Errorf("index %q out of range", segs[0])
		}
		v, err := apply(n[idx], segs[1:], types)
		if err != nil {
			return nil, err
		}
		n[idx] = v
		return n, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T", node)
	}
}

func convert(node any, types []string) (any, error) {
	if len(types) != 1 {
		return nil, fmt.Errorf("expected exactly one type, got %d", len(types))
	}
	s, ok := node.(string)
	if !ok {
		return nil, fmt.Errorf("%s value must be a string, got %T", types[0], node)
	}
	switch types[0] {
	case TypeDate:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q", s)
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	case TypeBigInt:
		if _, ok := new(big.Int).SetString(s, 10); !ok {
			return nil, fmt.Errorf("invalid bigint %q", s)
		}
		return json.Number(s), nil
	default:
		return nil, fmt.Errorf("unsupported type %q", types[0])
	}
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}

func escapeKey(key string) string {
	return strings.ReplaceAll(key, ".", `\.`)
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	var (
		segs []string
		cur  strings.Builder
	)
	for i := 0; i < len(p); i++ {
		switch {
		case p[i] == '\\' && i+1 < len(p) && p[i+1] == '.':
			cur.WriteByte('.')
			i++
		case p[i] == '.':
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(p[i])
		}
	}
	return append(segs, cur.String())
}
