package audit

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"sort"
	"time"

	"github.com/gosuda/praxis/internal/domain"
)

// systemFields are bookkeeping keys ignored when comparing snapshots. Every
// trigger uses this one set.
var systemFields = map[string]struct{}{ //nolint:gochecknoglobals // fixed exclusion set
	domain.FieldCreated:             {},
	domain.FieldChanged:             {},
	domain.FieldTimestamp:           {},
	domain.FieldLastModifiedBy:      {},
	domain.FieldLastModifiedByEmail: {},
}

// IsSystemField reports whether key is excluded from change comparison.
func IsSystemField(key string) bool {
	_, ok := systemFields[key]
	return ok
}

// FieldChange describes one differing field between two snapshots.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
}

// HasActualChanges reports whether before and after differ on any
// non-system key. A key present on one side only counts as a change, even
// if the other side holds an explicit nil.
func HasActualChanges(before, after domain.Snapshot) bool {
	for key := range unionKeys(before, after) {
		if IsSystemField(key) {
			continue
		}
		if !sameField(before, after, key) {
			return true
		}
	}
	return false
}

// DetectChanges lists every differing non-system field, sorted by name.
func DetectChanges(before, after domain.Snapshot) []FieldChange {
	var changes []FieldChange
	for key := range unionKeys(before, after) {
		if IsSystemField(key) || sameField(before, after, key) {
			continue
		}
		changes = append(changes, FieldChange{
			Field:    key,
			OldValue: before[key],
			NewValue: after[key],
		})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

func unionKeys(a, b domain.Snapshot) map[string]struct{} {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	return keys
}

func sameField(before, after domain.Snapshot, key string) bool {
	oldValue, inBefore := before[key]
	newValue, inAfter := after[key]
	if inBefore != inAfter {
		return false
	}
	return equalValues(oldValue, newValue)
}

// equalValues is structural equality over the JSON variant set: maps ignore
// key order, slices are order-sensitive and numbers compare by value. Other Go
// shapes (typed maps and slices, structs) are brought into that set first.
func equalValues(a, b any) bool {
	a, b = canonical(a), canonical(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ia, ok := toInt(a); ok {
		if ib, okB := toInt(b); okB {
			return ia.Cmp(ib) == 0
		}
	}
	if fa, ok := toFloat(a); ok {
		fb, okB := toFloat(b)
		return okB && (fa == fb || (math.IsNaN(fa) && math.IsNaN(fb)))
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case map[string]any:
		bm, ok := b.(map[string]any)
		if !ok || len(av) != len(bm) {
			return false
		}
		for k, v := range av {
			bv, present := bm[k]
			if !present || !equalValues(v, bv) {
				return false
			}
		}
		return true
	case []any:
		bs, ok := b.([]any)
		if !ok || len(av) != len(bs) {
			return false
		}
		for i := range av {
			if !equalValues(av[i], bs[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

// canonical maps v onto the variant set without redacting anything: string
// keyed maps become map[string]any, slices and arrays become []any, and
// remaining composite values take their JSON form.
func canonical(v any) any {
	switch v.(type) {
	case nil, string, bool, time.Time, json.Number, map[string]any, []any:
		return v
	}
	if _, ok := toFloat(v); ok {
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}

	if j, ok := jsonVariant(v); ok {
		return j
	}
	return v
}

func jsonVariant(v any) (any, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	return out, true
}

// toInt returns v as an exact integer when it is one.
func toInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), true
	case int8:
		return big.NewInt(int64(n)), true
	case int16:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return big.NewInt(int64(n)), true
	case uint16:
		return big.NewInt(int64(n)), true
	case uint32:
		return big.NewInt(int64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case json.Number:
		return new(big.Int).SetString(n.String(), 10)
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
