package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmbuddy/pkg/buddytypes"
)

func TestChannel_PostAndDrainPreservesOrder(t *testing.T) {
	ch := NewChannel()
	env := buddytypes.Envelope{RequestID: "r1"}

	ch.Post(buddytypes.Info{Envelope: env, Text: "one"})
	ch.Post(buddytypes.Chunk{Envelope: env, Text: "two", LiveCompletionTokens: 1})
	ch.Post(buddytypes.Sentinel{Envelope: env})

	assert.Equal(t, 3, ch.Len())

	msgs := ch.Drain()
	require.Len(t, msgs, 3)
	assert.Equal(t, "info", buddytypes.KindOf(msgs[0]))
	assert.Equal(t, "chunk", buddytypes.KindOf(msgs[1]))
	assert.Equal(t, "sentinel", buddytypes.KindOf(msgs[2]))
	assert.Equal(t, 0, ch.Len())
	assert.Nil(t, ch.Drain())

	posted, drained := ch.Stats()
	assert.Equal(t, uint64(3), posted)
	assert.Equal(t, uint64(3), drained)
}

func TestChannel_TryReceive(t *testing.T) {
	ch := NewChannel()

	_, ok := ch.TryReceive()
	assert.False(t, ok)

	ch.Post(buddytypes.Info{Text: "hello"})
	msg, ok := ch.TryReceive()
	require.True(t, ok)
	info, isInfo := msg.(buddytypes.Info)
	require.True(t, isInfo)
	assert.Equal(t, "hello", info.Text)
}

func TestChannel_PostNilIgnored(t *testing.T) {
	ch := NewChannel()
	ch.Post(nil)
	assert.Equal(t, 0, ch.Len())
}

func TestChannel_ConcurrentProducers(t *testing.T) {
	ch := NewChannel()
	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq := NewSequence(ch, "")
			for i := 0; i < perProducer; i++ {
				seq.Chunk("x", i+1)
			}
			seq.Close()
		}()
	}
	wg.Wait()

	msgs := ch.Drain()
	require.Len(t, msgs, producers*(perProducer+1))

	// Within one request sequence, order is preserved and the sentinel is last.
	lastLive := map[string]int{}
	closed := map[string]bool{}
	for _, m := range msgs {
		id := m.Request()
		require.False(t, closed[id], "message after sentinel for %s", id)
		switch v := m.(type) {
		case buddytypes.Chunk:
			assert.Equal(t, lastLive[id]+1, v.LiveCompletionTokens)
			lastLive[id] = v.LiveCompletionTokens
		case buddytypes.Sentinel:
			closed[id] = true
		}
	}
	assert.Len(t, closed, producers)
}

func TestChannel_ReceiveBlocksUntilPost(t *testing.T) {
	ch := NewChannel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		ch.Post(buddytypes.Info{Text: "late"})
	}()

	msg, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "info", buddytypes.KindOf(msg))
}

func TestChannel_ReceiveHonorsContext(t *testing.T) {
	ch := NewChannel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := ch.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_Shutdown(t *testing.T) {
	ch := NewChannel()
	require.NoError(t, ch.Initialize())
	ch.Post(buddytypes.Info{Text: "before"})
	require.NoError(t, ch.Shutdown())

	ch.Post(buddytypes.Info{Text: "after"})
	assert.Equal(t, 1, ch.Len())

	_, err := ch.Receive(context.Background())
	require.NoError(t, err)
	_, err = ch.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSequence_SingleSentinel(t *testing.T) {
	ch := NewChannel()
	seq := NewSequence(ch, "fixed")
	assert.Equal(t, "fixed", seq.ID())

	seq.Info("working")
	seq.Close()
	seq.Close()
	seq.Error("ignored after close")

	msgs := ch.Drain()
	require.Len(t, msgs, 2)
	assert.IsType(t, buddytypes.Info{}, msgs[0])
	assert.IsType(t, buddytypes.Sentinel{}, msgs[1])
	assert.Equal(t, "fixed", msgs[1].Request())
	assert.True(t, seq.Closed())
}
