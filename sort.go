package main

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ratioSep joins numerator and denominator in the string form of a ratio
// key ("messages/viewers"). Only ParseSortKey and SortKey.String speak it;
// everything else uses the tagged struct.
const ratioSep = "/"

type SortDirection int

const (
	SortNone SortDirection = iota
	SortAscending
	SortDescending
)

func (d SortDirection) String() string {
	switch d {
	case SortAscending:
		return "asc"
	case SortDescending:
		return "desc"
	default:
		return "none"
	}
}

func ParseSortDirection(s string) SortDirection {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return SortAscending
	case "desc", "descending":
		return SortDescending
	default:
		return SortNone
	}
}

// SortKey is either a plain field or a derived ratio of two fields.
// Num/Den are set only for ratio keys.
type SortKey struct {
	Field string
	Num   string
	Den   string
}

func FieldKey(name string) SortKey { return SortKey{Field: name} }

func RatioKey(num, den string) SortKey { return SortKey{Num: num, Den: den} }

func (k SortKey) IsRatio() bool { return k.Num != "" && k.Den != "" }

func (k SortKey) IsZero() bool { return k == SortKey{} }

func (k SortKey) String() string {
	if k.IsRatio() {
		return k.Num + ratioSep + k.Den
	}
	return k.Field
}

// ParseSortKey reads the boundary string form: "field" or "num/den".
// Anything malformed ("a/b/c", "/x", "x/") degrades to a plain field key,
// which in turn resolves to nil values and a no-op order.
func ParseSortKey(s string) SortKey {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ratioSep); i >= 0 {
		num := strings.TrimSpace(s[:i])
		den := strings.TrimSpace(s[i+1:])
		if num != "" && den != "" && !strings.Contains(den, ratioSep) {
			return RatioKey(num, den)
		}
	}
	return FieldKey(s)
}

// SortState is the immutable sort state of one table view: exactly one
// active key and direction. Mutated only through RequestSort; replaced
// wholesale when the view's dataset changes.
type SortState struct {
	Key SortKey       `json:"key"`
	Dir SortDirection `json:"dir"`
}

// RequestSort is the tri-state toggle: the active key cycles
// asc -> desc -> none -> asc, any other key starts a fresh ascending state.
func RequestSort(cur SortState, key SortKey) SortState {
	if key == cur.Key {
		switch cur.Dir {
		case SortAscending:
			return SortState{Key: key, Dir: SortDescending}
		case SortDescending:
			return SortState{Key: key, Dir: SortNone}
		default:
			return SortState{Key: key, Dir: SortAscending}
		}
	}
	return SortState{Key: key, Dir: SortAscending}
}

// ComputeOrder returns the records ordered per state. Direction none is the
// identity (fresh slice, input order). The sort is stable, nil values go
// last in both directions, and no record shape can make it fail.
func ComputeOrder(records []Record, st SortState) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	if st.Dir == SortNone || len(out) < 2 {
		return out
	}

	sign := 1
	if st.Dir == SortDescending {
		sign = -1
	}

	type keyed struct {
		rec Record
		val any
	}
	rows := make([]keyed, len(out))
	for i, r := range out {
		rows[i] = keyed{rec: r, val: resolveSortValue(r, st.Key)}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return lessValue(rows[i].val, rows[j].val, sign)
	})

	for i := range rows {
		out[i] = rows[i].rec
	}
	return out
}

// resolveSortValue maps a record to its comparable value for the key.
// Ratio keys divide only when the denominator is a positive number; a zero
// or negative denominator resolves to 0, never Inf/NaN. A ratio with a
// missing side, or a missing plain field, resolves to nil (sorts last).
func resolveSortValue(r Record, k SortKey) any {
	if k.IsRatio() {
		num, okN := toFloat(r[k.Num])
		den, okD := toFloat(r[k.Den])
		if !okN || !okD {
			return nil
		}
		if den > 0 {
			return num / den
		}
		return float64(0)
	}
	v, ok := r[k.Field]
	if !ok {
		return nil
	}
	return v
}

// lessValue orders two resolved values with the direction's sign.
// nil loses to everything regardless of sign; finite numbers (including
// numeric strings) compare numerically; everything else compares as
// case-insensitive strings. Equal values report false both ways so the
// stable sort preserves input order.
func lessValue(a, b any, sign int) bool {
	if a == nil || b == nil {
		if a == nil {
			return false
		}
		return true
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		if af == bf {
			return false
		}
		if sign > 0 {
			return af < bf
		}
		return af > bf
	}

	as := strings.ToLower(stringValue(a))
	bs := strings.ToLower(stringValue(b))
	if as == bs {
		return false
	}
	if sign > 0 {
		return as < bs
	}
	return as > bs
}

// toFloat interprets v as a finite number if it can. Numeric strings count;
// NaN/Inf do not.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Event-count ranking order: total desc, then viewer spikes desc, then
// chat spikes desc, channel name as the final tiebreak.
func sortEventCounts(rows []EventCountRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if a.ViewerSpikes != b.ViewerSpikes {
			return a.ViewerSpikes > b.ViewerSpikes
		}
		if a.ChatSpikes != b.ChatSpikes {
			return a.ChatSpikes > b.ChatSpikes
		}
		return a.Channel < b.Channel
	})
}
