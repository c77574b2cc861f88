package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) listen(m *Model, kinds ...EventKind) {
	for _, k := range kinds {
		m.Subscribe(k, func(ev Event) { r.events = append(r.events, ev) })
	}
}

func (r *recorder) ofKind(k EventKind) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func TestSetValue_SameValueFiresOnce(t *testing.T) {
	m := New("player1", nil)
	rec := &recorder{}
	rec.listen(m, KindChange)

	assert.True(t, m.SetValue("health", 100.0))
	assert.False(t, m.SetValue("health", 100.0))

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, "player1", ev.Model)
	assert.Equal(t, "health", ev.Change.Key)
	assert.Nil(t, ev.Change.OldValue)
	assert.Equal(t, 100.0, ev.Change.NewValue)
}

func TestSetValue_DeepEqualIsNoop(t *testing.T) {
	m := New("ui", map[string]any{"pos": map[string]any{"x": 1.0, "y": 2.0}})
	rec := &recorder{}
	rec.listen(m, KindChange)

	assert.False(t, m.SetValue("pos", map[string]any{"x": 1.0, "y": 2.0}))
	assert.True(t, m.SetValue("pos", map[string]any{"x": 1.0, "y": 3.0}))
	assert.Len(t, rec.events, 1)
}

func TestSetValues_BatchThenPerKey(t *testing.T) {
	m := New("player1", nil)
	rec := &recorder{}
	rec.listen(m, KindBatchChange, KindChange)

	batch := m.SetValues([]Entry{{Key: "a", Value: 1.0}, {Key: "b", Value: 2.0}})
	require.Len(t, batch, 2)

	require.Len(t, rec.events, 3)
	assert.Equal(t, KindBatchChange, rec.events[0].Kind)
	require.Len(t, rec.events[0].Batch, 2)
	assert.Equal(t, "a", rec.events[0].Batch[0].Key)
	assert.Equal(t, "b", rec.events[0].Batch[1].Key)
	assert.Equal(t, KindChange, rec.events[1].Kind)
	assert.Equal(t, "a", rec.events[1].Change.Key)
	assert.Equal(t, KindChange, rec.events[2].Kind)
	assert.Equal(t, "b", rec.events[2].Change.Key)
}

// Unchanged keys stay in the batch record but get no per-key change event.
// Broadcasts read the batch to decide what moved, so keep this asymmetry.
func TestSetValues_UnchangedKeyInBatchOnly(t *testing.T) {
	m := New("player1", map[string]any{"a": 1.0})
	rec := &recorder{}
	rec.listen(m, KindBatchChange, KindChange)

	batch := m.SetValues([]Entry{{Key: "a", Value: 1.0}, {Key: "b", Value: 5.0}})

	require.Len(t, batch, 2)
	assert.False(t, batch[0].Changed)
	assert.Equal(t, batch[0].OldValue, batch[0].NewValue)
	assert.True(t, batch[1].Changed)

	batches := rec.ofKind(KindBatchChange)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Batch, 2)

	changes := rec.ofKind(KindChange)
	require.Len(t, changes, 1)
	assert.Equal(t, "b", changes[0].Change.Key)

	assert.Equal(t, []Change{batch[1]}, ChangedOnly(batch))
}

func TestSetValues_OldValuesComputedBeforeMutation(t *testing.T) {
	m := New("m", map[string]any{"k": "v0"})
	batch := m.SetValues([]Entry{{Key: "k", Value: "v1"}, {Key: "k", Value: "v2"}})
	require.Len(t, batch, 2)
	assert.Equal(t, "v0", batch[0].OldValue)
	assert.Equal(t, "v0", batch[1].OldValue)
	assert.Equal(t, "v2", m.GetValue("k", nil))
	assert.Equal(t, []string{"k"}, m.Keys())
}

func TestGetValue_DefaultWhenAbsent(t *testing.T) {
	m := New("m", nil)
	assert.Equal(t, "fallback", m.GetValue("missing", "fallback"))
	assert.Nil(t, m.GetValue("missing", nil))
}

func TestState_IsDefensiveCopy(t *testing.T) {
	m := New("m", map[string]any{
		"inv":  []any{"sword"},
		"meta": map[string]any{"level": 1.0},
	})
	snap := m.State()
	snap["new"] = true
	snap["inv"].([]any)[0] = "shield"
	snap["meta"].(map[string]any)["level"] = 99.0

	again := m.State()
	assert.NotContains(t, again, "new")
	assert.Equal(t, "sword", again["inv"].([]any)[0])
	assert.Equal(t, 1.0, again["meta"].(map[string]any)["level"])

	v := m.GetValue("meta", nil).(map[string]any)
	v["level"] = 7.0
	assert.Equal(t, 1.0, m.GetValue("meta", nil).(map[string]any)["level"])
}

func TestReset_EmitsOldAndNew(t *testing.T) {
	m := New("m", map[string]any{"a": 1.0})
	rec := &recorder{}
	rec.listen(m, KindReset, KindChange)

	m.Reset(map[string]any{"b": 2.0})

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, KindReset, ev.Kind)
	assert.Equal(t, map[string]any{"a": 1.0}, ev.OldState)
	assert.Equal(t, map[string]any{"b": 2.0}, ev.NewState)
	assert.Equal(t, map[string]any{"b": 2.0}, m.State())

	m.Reset(nil)
	assert.Empty(t, m.State())
	assert.Empty(t, m.Keys())
}

func TestKeys_InsertionOrder(t *testing.T) {
	m := New("m", nil)
	m.SetValue("z", 1)
	m.SetValue("a", 2)
	m.SetValues([]Entry{{Key: "m", Value: 3}, {Key: "z", Value: 4}})
	assert.Equal(t, []string{"z", "a", "m"}, m.Keys())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	m := New("m", nil)
	calls := 0
	stop := m.Subscribe(KindChange, func(Event) { calls++ })
	m.SetValue("a", 1)
	stop()
	m.SetValue("a", 2)
	assert.Equal(t, 1, calls)
}

func TestListenerPanicDoesNotEscape(t *testing.T) {
	m := New("m", nil)
	after := 0
	m.Subscribe(KindChange, func(Event) { panic("boom") })
	m.Subscribe(KindChange, func(Event) { after++ })

	assert.NotPanics(t, func() { m.SetValue("a", 1) })
	assert.Equal(t, 1, after)
	assert.Equal(t, 1.0, m.GetValue("a", nil))
}

func TestListenerMayReadModel(t *testing.T) {
	m := New("m", nil)
	var seen any
	m.Subscribe(KindChange, func(ev Event) { seen = m.GetValue(ev.Change.Key, nil) })
	m.SetValue("a", "x")
	assert.Equal(t, "x", seen)
}

func TestParseEntries_KeepsDocumentOrder(t *testing.T) {
	entries, err := ParseEntries([]byte(`{"zeta":1,"alpha":{"x":true},"mid":[1,"two"]}`))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "zeta", entries[0].Key)
	assert.Equal(t, "alpha", entries[1].Key)
	assert.Equal(t, "mid", entries[2].Key)
	assert.Equal(t, 1.0, entries[0].Value)
	assert.Equal(t, map[string]any{"x": true}, entries[1].Value)
	assert.Equal(t, []any{1.0, "two"}, entries[2].Value)

	_, err = ParseEntries([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = ParseEntries([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestSeededIntegersMatchWireNumbers(t *testing.T) {
	// Config loaders hand over Go ints; the wire hands over float64.
	m := New("player1", map[string]any{"health": 100, "slots": []int{1, 2}})
	rec := &recorder{}
	rec.listen(m, KindChange)

	entries, err := ParseEntries([]byte(`{"health":100,"slots":[1,2]}`))
	require.NoError(t, err)
	batch := m.SetValues(entries)
	require.Len(t, batch, 2)
	assert.False(t, batch[0].Changed)
	assert.False(t, batch[1].Changed)
	assert.Empty(t, ChangedOnly(batch))
	assert.Empty(t, rec.events)

	assert.False(t, m.SetValue("health", int64(100)))
	assert.Equal(t, 100.0, m.GetValue("health", nil))
	assert.Equal(t, []any{1.0, 2.0}, m.GetValue("slots", nil))
}

func TestValuesTakeJSONShapes(t *testing.T) {
	m := New("m", map[string]any{
		"nested": map[string]any{"lvl": int32(3), "tags": []string{"a"}},
		"ratio":  float32(0.1),
		"big":    int64(1) << 60,
		"count":  uint8(7),
	})
	assert.Equal(t, map[string]any{"lvl": 3.0, "tags": []any{"a"}}, m.GetValue("nested", nil))
	assert.Equal(t, 0.1, m.GetValue("ratio", nil))
	assert.Equal(t, json.Number("1152921504606846976"), m.GetValue("big", nil))
	assert.Equal(t, 7.0, m.GetValue("count", nil))

	m.Reset(map[string]any{"n": 2})
	assert.Equal(t, map[string]any{"n": 2.0}, m.State())
}

func TestParseEntries_LargeIntegersStayExact(t *testing.T) {
	entries, err := ParseEntries([]byte(`{"id":9007199254740993,"edge":9007199254740992,"neg":-12345678901234567890,"f":1.5e300,"list":[9007199254740993]}`))
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, json.Number("9007199254740993"), entries[0].Value)
	assert.Equal(t, float64(1<<53), entries[1].Value)
	assert.Equal(t, json.Number("-12345678901234567890"), entries[2].Value)
	assert.Equal(t, 1.5e300, entries[3].Value)
	assert.Equal(t, []any{json.Number("9007199254740993")}, entries[4].Value)

	m := New("m", nil)
	m.SetValues(entries)
	out, err := json.Marshal(m.State())
	require.NoError(t, err)
	assert.Contains(t, string(out), `"id":9007199254740993`)
	assert.False(t, m.SetValue("id", json.Number("9007199254740993")))
	assert.False(t, m.SetValue("edge", json.Number("9007199254740992")))
}
