package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxFIFO(t *testing.T) {
	b := newInbox()
	assert.False(t, b.pending())

	for i := int64(0); i < 3; i++ {
		require.True(t, b.push(&request{op: opSeek, frame: i}))
	}
	assert.True(t, b.pending())

	// Several pushes leave a single wake-up.
	<-b.notify
	select {
	case <-b.notify:
		t.Fatal("notify should hold one token")
	default:
	}

	got := b.drain()
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, int64(i), r.frame)
	}
	assert.False(t, b.pending())
	assert.Empty(t, b.drain())
}

func TestInboxClose(t *testing.T) {
	b := newInbox()
	b.push(&request{op: opPlay})

	left := b.close()
	assert.Len(t, left, 1)
	assert.False(t, b.push(&request{op: opStop}))
	assert.False(t, b.pending())
}

func TestOpCodeString(t *testing.T) {
	assert.Equal(t, "step_backward", opStepBackward.String())
	assert.Equal(t, "unknown", opCode(99).String())
}
