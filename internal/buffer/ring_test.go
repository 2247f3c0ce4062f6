package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRecord struct {
	t time.Time
	v int
}

func (f fakeRecord) WindowTime() time.Time { return f.t }

func TestRing_EmptyBoundaries(t *testing.T) {
	r := New[fakeRecord](3)
	assert.Equal(t, 0, r.Size())
	assert.False(t, r.IsFull())
	assert.Empty(t, r.GetLast(5))
	_, ok := r.OldestTime()
	assert.False(t, ok)
	_, ok = r.NewestTime()
	assert.False(t, ok)
}

func TestRing_PushEvictsOldest(t *testing.T) {
	r := New[fakeRecord](2)
	base := time.Now()
	r.Push(fakeRecord{t: base, v: 1})
	r.Push(fakeRecord{t: base.Add(time.Second), v: 2})
	assert.True(t, r.IsFull())

	r.Push(fakeRecord{t: base.Add(2 * time.Second), v: 3})
	assert.Equal(t, 2, r.Size())

	last := r.GetLast(10)
	assert.Len(t, last, 2)
	assert.Equal(t, 2, last[0].v)
	assert.Equal(t, 3, last[1].v)
}

func TestRing_GetLastDoesNotMutate(t *testing.T) {
	r := New[fakeRecord](5)
	base := time.Now()
	r.Push(fakeRecord{t: base, v: 1})

	snap := r.GetLast(1)
	snap[0].v = 999

	assert.Equal(t, 1, r.GetLast(1)[0].v)
}

func TestRing_ClearEmpties(t *testing.T) {
	r := New[fakeRecord](2)
	r.Push(fakeRecord{t: time.Now(), v: 1})
	r.Clear()
	assert.Equal(t, 0, r.Size())
}
