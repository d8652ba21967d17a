package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func lastSaturday() Config {
	return Config{EntryID: "e1", Name: "Bins", Weekdays: []string{"sat"}, NthWeekday: []string{"-1"}}
}

func TestSensorStartsOn(t *testing.T) {
	s := New(lastSaturday())
	assert.True(t, s.IsOn())
	assert.Equal(t, "e1", s.UniqueID())
	assert.Empty(t, s.State().EvaluatedFor)
}

func TestSensorFlipsAtMostOncePerDay(t *testing.T) {
	s := New(lastSaturday())

	assert.True(t, s.Update(at(2023, 5, 26, 0)), "initial on -> off")
	assert.False(t, s.IsOn())
	assert.False(t, s.Update(at(2023, 5, 26, 23)))

	assert.True(t, s.Update(at(2023, 5, 27, 0)))
	assert.True(t, s.IsOn())
	assert.False(t, s.Update(at(2023, 5, 27, 12)))

	st := s.State()
	assert.Equal(t, "2023-05-27", st.EvaluatedFor)
	assert.Equal(t, at(2023, 5, 27, 0), st.LastChanged)
	assert.Equal(t, []string{"sat"}, st.Attributes[AttrWeekdays])
	assert.Equal(t, []string{"-1"}, st.Attributes[AttrNthWeekday])
	assert.Equal(t, "2023-05-27", st.Attributes[AttrNextMatch])

	assert.True(t, s.Update(at(2023, 5, 28, 0)))
	assert.Equal(t, "2023-06-24", s.State().Attributes[AttrNextMatch])
}

func TestSensorBadOrdinalsNeverMatch(t *testing.T) {
	s := New(Config{EntryID: "e", Weekdays: []string{"sat"}, NthWeekday: []string{"last", "9"}})
	for d := 1; d <= 31; d++ {
		s.Update(at(2023, 5, d, 0))
		require.False(t, s.IsOn(), "day %d", d)
	}
	_, ok := s.State().Attributes[AttrNextMatch]
	assert.False(t, ok)
}

func TestSensorReconfigureReevaluates(t *testing.T) {
	s := New(lastSaturday())
	s.Update(at(2023, 5, 26, 0))
	require.False(t, s.IsOn())

	s.Reconfigure(Config{Name: "Friday", Weekdays: []string{"fri"}, NthWeekday: []string{"-1"}})
	assert.Equal(t, "e1", s.UniqueID())
	assert.True(t, s.Update(at(2023, 5, 26, 1)))
	assert.True(t, s.IsOn())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Add(New(Config{EntryID: "b", Name: "Zeta", Weekdays: []string{"sat"}, NthWeekday: []string{"-1"}}))
	r.Add(New(Config{EntryID: "a", Name: "Alpha", Weekdays: []string{"tue"}, NthWeekday: []string{"2"}}))
	require.Equal(t, 2, r.Len())

	list := r.List()
	assert.Equal(t, "a", list[0].UniqueID())
	assert.Equal(t, "b", list[1].UniqueID())

	// 2024-09-03 is the Tuesday of the second calendar row; both sensors
	// start on.
	changed := r.UpdateAll(at(2024, 9, 3, 0))
	require.Len(t, changed, 1)
	assert.Equal(t, "b", changed[0].EntryID)
	assert.False(t, changed[0].IsOn)

	assert.Empty(t, r.UpdateAll(at(2024, 9, 3, 6)))

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	_, ok := r.Get("a")
	assert.False(t, ok)
}
