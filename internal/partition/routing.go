package partition

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/nutrisage/nutrisage/pkg/types"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Default raw field names the partition keys are derived from.
const (
	DefaultTimestampField = "created_t"
	DefaultCountryField   = "countries_tags"
)

// Seconds bounds of years 0001 through 9999 UTC.
const (
	minEpochSeconds = -62135596800
	maxEpochSeconds = 253402300799
)

var (
	// Any leading two-letter segment followed by ':', '_' or '-' is a
	// language prefix, so "us-virgin-islands" normalizes to "virgin-islands".
	langPrefix  = regexp.MustCompile(`^[a-z]{2}[:_-]`)
	invalidSlug = regexp.MustCompile(`[^a-z0-9-]`)
	stripMarks  = runes.Remove(runes.In(unicode.Mn))
)

// Resolver derives the year and country partition values of a record.
// Resolution is total: every input yields non-empty values, with
// types.UnknownPartition as the fallback.
type Resolver struct {
	timestampField string
	countryField   string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTimestampField overrides the epoch-seconds creation field.
func WithTimestampField(name string) ResolverOption {
	return func(r *Resolver) { r.timestampField = name }
}

// WithCountryField overrides the countries tag field.
func WithCountryField(name string) ResolverOption {
	return func(r *Resolver) { r.countryField = name }
}

// NewResolver creates a partition resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		timestampField: DefaultTimestampField,
		countryField:   DefaultCountryField,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve derives partition values from a raw decoded record. The raw
// record is the authoritative input during ingestion.
func (r *Resolver) Resolve(raw map[string]any) types.PartitionValues {
	return types.PartitionValues{
		Year:    ResolveYear(raw[r.timestampField]),
		Country: NormalizeCountry(raw[r.countryField]),
	}
}

// ResolveFlat derives partition values from a flattened row. It agrees with
// Resolve whenever both fields are top-level columns of the contract.
func (r *Resolver) ResolveFlat(row types.FlatRow) types.PartitionValues {
	ts, _ := row.Get(r.timestampField)
	tags, _ := row.Get(r.countryField)
	return types.PartitionValues{
		Year:    ResolveYear(ts),
		Country: NormalizeCountry(tags),
	}
}

// ResolveYear interprets v as integer epoch seconds and returns the UTC
// calendar year as four digits. JSON numbers with a fraction are
// truncated; strings must hold an integer literal.
func ResolveYear(v any) string {
	secs, ok := epochSeconds(v)
	if !ok || secs < minEpochSeconds || secs > maxEpochSeconds {
		return types.UnknownPartition
	}
	return fmt.Sprintf("%04d", time.Unix(secs, 0).UTC().Year())
}

func epochSeconds(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return truncate(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return i, err == nil
	case float64:
		return truncate(x)
	case float32:
		return truncate(float64(x))
	case int:
		return int64(x), true
	case int64:
		return x, true
	case int32:
		return int64(x), true
	default:
		return 0, false
	}
}

func truncate(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// NormalizeCountry turns a countries tag field into a lowercase ASCII slug,
// e.g. ["en:United States"] becomes "united-states". A sequence contributes
// its first element; a scalar contributes its first comma-separated token.
func NormalizeCountry(v any) string {
	raw, ok := firstTag(v)
	if !ok {
		return types.UnknownPartition
	}

	s := strings.ToLower(strings.TrimSpace(raw))
	if folded, _, err := transform.String(transform.Chain(norm.NFD, stripMarks, norm.NFC), s); err == nil {
		s = folded
	}
	s = langPrefix.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "-")
	s = invalidSlug.ReplaceAllString(s, "")
	if s == "" {
		return types.UnknownPartition
	}
	return s
}

func firstTag(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case []any:
		if len(x) == 0 || x[0] == nil {
			return "", false
		}
		return scalarString(x[0]), true
	case []string:
		if len(x) == 0 {
			return "", false
		}
		return x[0], true
	case string:
		if x == "" {
			return "", false
		}
		tok, _, _ := strings.Cut(x, ",")
		return tok, true
	case bool:
		if !x {
			return "", false
		}
		return "true", true
	default:
		s := scalarString(x)
		if s == "0" {
			return "", false
		}
		tok, _, _ := strings.Cut(s, ",")
		return tok, true
	}
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
