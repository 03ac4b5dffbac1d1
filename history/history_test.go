package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendThenUndoRedo(t *testing.T) {
	s := NewStacks()
	s.Append(Entry{{Op: "forward"}})
	require.True(t, s.CanUndo())
	require.False(t, s.CanRedo())

	entry, ok := s.PopUndo()
	require.True(t, ok)
	assert.Equal(t, "forward", entry[0].Op)

	s.PushRedo(Entry{{Op: "reverse-of-forward"}})
	require.True(t, s.CanRedo())

	redone, ok := s.PopRedo()
	require.True(t, ok)
	assert.Equal(t, "reverse-of-forward", redone[0].Op)
}

func TestAppendClearsRedoStack(t *testing.T) {
	s := NewStacks()
	s.Append(Entry{{Op: "a"}})
	s.PopUndo()
	s.PushRedo(Entry{{Op: "undo-of-a"}})
	require.True(t, s.CanRedo())

	s.Append(Entry{{Op: "b"}})
	assert.False(t, s.CanRedo())
}

func TestUndoStackBoundedAt50(t *testing.T) {
	s := NewStacks()
	for i := 0; i < MaxEntries+10; i++ {
		s.Append(Entry{{Op: i}})
	}
	assert.Equal(t, MaxEntries, s.UndoLen())

	oldest, ok := s.undo[0], true
	require.True(t, ok)
	assert.Equal(t, 10, oldest[0].Op) // the first 10 pushes were shifted out
}

func TestPauseResumeCoalescesIntoOneEntry(t *testing.T) {
	s := NewStacks()
	s.Pause()
	s.Append(Entry{{Op: "a"}})
	s.Append(Entry{{Op: "b"}})
	assert.False(t, s.CanUndo(), "appends while paused must not land on the undo stack yet")

	s.Resume()
	require.True(t, s.CanUndo())
	assert.Equal(t, 1, s.UndoLen())

	entry, _ := s.PopUndo()
	assert.Equal(t, []Item{{Op: "a"}, {Op: "b"}}, []Item(entry))
}

func TestEmptyAppendIsNoop(t *testing.T) {
	s := NewStacks()
	s.Append(nil)
	assert.False(t, s.CanUndo())
}

func TestBatchCoalescesIntoSingleEntryAndNotifies(t *testing.T) {
	s := NewStacks()
	notified := 0
	s.Batch(func() {
		s.Append(Entry{{Op: "a"}})
		s.Append(Entry{{Op: "b"}})
	}, func() { notified++ })

	assert.Equal(t, 1, s.UndoLen())
	assert.Equal(t, 1, notified)

	entry, _ := s.PopUndo()
	assert.Len(t, entry, 2)
}

func TestEmptyBatchDoesNotNotify(t *testing.T) {
	s := NewStacks()
	notified := 0
	s.Batch(func() {}, func() { notified++ })
	assert.Equal(t, 0, notified)
	assert.False(t, s.CanUndo())
}

func TestNestedBatchPanics(t *testing.T) {
	s := NewStacks()
	assert.Panics(t, func() {
		s.Batch(func() {
			s.Batch(func() {}, nil)
		}, nil)
	})
}

func TestBatchClearsRedoStack(t *testing.T) {
	s := NewStacks()
	s.Append(Entry{{Op: "a"}})
	s.PopUndo()
	s.PushRedo(Entry{{Op: "undo-a"}})
	require.True(t, s.CanRedo())

	s.Batch(func() {
		s.Append(Entry{{Op: "b"}})
	}, nil)
	assert.False(t, s.CanRedo())
}
