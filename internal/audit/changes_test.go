package audit_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/praxis/internal/audit"
	"github.com/gosuda/praxis/internal/domain"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		"nome":    "Mario",
		"cognome": "Rossi",
		"email":   "mario@example.com",
		"tags":    []any{"cliente", "vip"},
		"indirizzo": map[string]any{
			"via":   "Via Roma 1",
			"citta": "Milano",
		},
		"pratiche":            3.0,
		"created":             "2025-01-01T00:00:00Z",
		"changed":             "2025-01-02T00:00:00Z",
		"lastModifiedBy":      "uid-1",
		"lastModifiedByEmail": "op@example.com",
	}
}

func cloneSnapshot(t *testing.T, s domain.Snapshot) domain.Snapshot {
	t.Helper()
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var out domain.Snapshot
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHasActualChanges_IdenticalSnapshots(t *testing.T) {
	t.Parallel()

	s := sampleSnapshot()
	assert.False(t, audit.HasActualChanges(s, s))
	assert.False(t, audit.HasActualChanges(s, cloneSnapshot(t, s)))
	assert.False(t, audit.HasActualChanges(nil, nil))
	assert.False(t, audit.HasActualChanges(domain.Snapshot{}, domain.Snapshot{}))
}

func TestHasActualChanges_SystemFieldsIgnored(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"created", "changed", "timestamp", "lastModifiedBy", "lastModifiedByEmail"} {
		t.Run(field, func(t *testing.T) {
			t.Parallel()

			before := sampleSnapshot()
			after := cloneSnapshot(t, before)
			after[field] = "something-else"
			assert.False(t, audit.HasActualChanges(before, after))

			delete(after, field)
			assert.False(t, audit.HasActualChanges(before, after))
		})
	}

	t.Run("only system fields on both sides", func(t *testing.T) {
		t.Parallel()

		before := domain.Snapshot{"changed": "a"}
		after := domain.Snapshot{"changed": "b", "timestamp": 1.0}
		assert.False(t, audit.HasActualChanges(before, after))
	})
}

func TestHasActualChanges_Differences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(s domain.Snapshot)
	}{
		{"scalar changed", func(s domain.Snapshot) { s["email"] = "new@example.com" }},
		{"key added", func(s domain.Snapshot) { s["telefono"] = "123" }},
		{"key removed", func(s domain.Snapshot) { delete(s, "cognome") }},
		{"key set to nil", func(s domain.Snapshot) { s["cognome"] = nil }},
		{"array reordered", func(s domain.Snapshot) { s["tags"] = []any{"vip", "cliente"} }},
		{"array grown", func(s domain.Snapshot) { s["tags"] = []any{"cliente", "vip", "nuovo"} }},
		{"nested value changed", func(s domain.Snapshot) {
			s["indirizzo"] = map[string]any{"via": "Via Roma 2", "citta": "Milano"}
		}},
		{"type changed", func(s domain.Snapshot) { s["pratiche"] = "3" }},
		{"number changed", func(s domain.Snapshot) { s["pratiche"] = 4.0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			before := sampleSnapshot()
			after := cloneSnapshot(t, before)
			tt.mutate(after)
			assert.True(t, audit.HasActualChanges(before, after))
		})
	}
}

func TestHasActualChanges_Equivalences(t *testing.T) {
	t.Parallel()

	t.Run("map key order irrelevant", func(t *testing.T) {
		t.Parallel()

		var a, b domain.Snapshot
		require.NoError(t, json.Unmarshal([]byte(`{"x":{"a":1,"b":2}}`), &a))
		require.NoError(t, json.Unmarshal([]byte(`{"x":{"b":2,"a":1}}`), &b))
		assert.False(t, audit.HasActualChanges(a, b))
	})

	t.Run("numeric kinds compare by value", func(t *testing.T) {
		t.Parallel()

		a := domain.Snapshot{"n": 3, "m": json.Number("2.5")}
		b := domain.Snapshot{"n": 3.0, "m": 2.5}
		assert.False(t, audit.HasActualChanges(a, b))
	})

	t.Run("equal instants in different zones", func(t *testing.T) {
		t.Parallel()

		utc := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
		rome := utc.In(time.FixedZone("CEST", 2*60*60))
		assert.False(t, audit.HasActualChanges(domain.Snapshot{"d": utc}, domain.Snapshot{"d": rome}))
	})

	t.Run("nil against empty snapshot", func(t *testing.T) {
		t.Parallel()

		assert.False(t, audit.HasActualChanges(nil, domain.Snapshot{"changed": "x"}))
		assert.True(t, audit.HasActualChanges(nil, domain.Snapshot{"nome": "Mario"}))
	})
}

func TestHasActualChanges_GoShapes(t *testing.T) {
	t.Parallel()

	type address struct {
		Via   string `json:"via"`
		Citta string `json:"citta"`
	}

	tests := []struct {
		name   string
		before any
		after  any
		want   bool
	}{
		{"string slice equals any slice", []any{"a", "b"}, []string{"a", "b"}, false},
		{"string slice differs", []any{"a", "b"}, []string{"a", "c"}, true},
		{"typed map equals generic map", map[string]any{"k": "v"}, map[string]string{"k": "v"}, false},
		{"typed map differs", map[string]any{"k": "v"}, map[string]string{"k": "w"}, true},
		{"slice of maps", []any{map[string]any{"n": 1.0}}, []map[string]any{{"n": 1}}, false},
		{"struct equals its JSON form", map[string]any{"via": "Via Roma 1", "citta": "Milano"}, address{"Via Roma 1", "Milano"}, false},
		{"struct differs from its JSON form", map[string]any{"via": "Via Roma 1", "citta": "Milano"}, address{"Via Roma 2", "Milano"}, true},
		{"typed nil slice equals nil", nil, []string(nil), false},
		{"int array equals float slice", []any{1.0, 2.0}, [2]int{1, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			before := domain.Snapshot{"v": tt.before}
			after := domain.Snapshot{"v": tt.after}
			assert.Equal(t, tt.want, audit.HasActualChanges(before, after))
			assert.Equal(t, tt.want, audit.HasActualChanges(after, before))
		})
	}
}

func TestHasActualChanges_LargeIntegers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		before any
		after  any
		want   bool
	}{
		{"int64 beyond float precision", int64(9007199254740993), int64(9007199254740992), true},
		{"uint64 beyond float precision", uint64(18446744073709551615), uint64(18446744073709551614), true},
		{"json number against int64", json.Number("9007199254740993"), int64(9007199254740992), true},
		{"same large value", json.Number("9007199254740993"), int64(9007199254740993), false},
		{"int against integral float", int64(3), 3.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, audit.HasActualChanges(
				domain.Snapshot{"n": tt.before},
				domain.Snapshot{"n": tt.after},
			))
		})
	}
}

func TestDetectChanges(t *testing.T) {
	t.Parallel()

	before := sampleSnapshot()
	after := cloneSnapshot(t, before)
	after["email"] = "new@example.com"
	after["telefono"] = "0212345"
	after["changed"] = "2025-02-01T00:00:00Z"
	delete(after, "cognome")

	changes := audit.DetectChanges(before, after)
	require.Len(t, changes, 3)

	assert.Equal(t, "cognome", changes[0].Field)
	assert.Equal(t, "Rossi", changes[0].OldValue)
	assert.Nil(t, changes[0].NewValue)

	assert.Equal(t, "email", changes[1].Field)
	assert.Equal(t, "mario@example.com", changes[1].OldValue)
	assert.Equal(t, "new@example.com", changes[1].NewValue)

	assert.Equal(t, "telefono", changes[2].Field)
	assert.Nil(t, changes[2].OldValue)
	assert.Equal(t, "0212345", changes[2].NewValue)

	assert.Empty(t, audit.DetectChanges(before, before))
}
