package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferNilAdoptsFirstKind(t *testing.T) {
	var buf *Buffer
	buf = buf.Push(BufferPartial, Data{"x": raw("1")})
	assert.Equal(t, BufferPartial, buf.Kind)
}

func TestFullBufferAbsorbsLaterPartials(t *testing.T) {
	buf := &Buffer{Kind: BufferFull, Data: Data{"x": raw("1")}}
	buf = buf.Push(BufferPartial, Data{"y": raw("2")})
	assert.Equal(t, BufferFull, buf.Kind)
	assert.Equal(t, raw("1"), buf.Data["x"])
	assert.Equal(t, raw("2"), buf.Data["y"])
}

func TestPartialBufferAbsorbsLaterFull(t *testing.T) {
	buf := &Buffer{Kind: BufferPartial, Data: Data{"x": raw("1")}}
	buf = buf.Push(BufferFull, Data{"y": raw("2")})
	assert.Equal(t, BufferPartial, buf.Kind)
	assert.Equal(t, raw("2"), buf.Data["y"])
}

func TestMergeDeletesOnNull(t *testing.T) {
	old := Data{"x": raw("1"), "y": raw("2")}
	merged := Merge(old, Data{"x": raw("null")})
	_, ok := merged["x"]
	assert.False(t, ok)
	assert.Equal(t, raw("2"), merged["y"])
}

func raw(s string) []byte { return []byte(s) }
