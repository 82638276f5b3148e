package flowdag

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/flowdag/flowdag/datatype"
)

func TestQueueFIFO(t *testing.T) {
	q := NewMessageQueue(4, true)
	ctx := context.Background()

	for i := int64(0); i < 4; i++ {
		assert.NoError(t, q.Send(ctx, buf(i)))
	}
	assert.Equal(t, 4, q.Len())

	for i := int64(0); i < 4; i++ {
		msg, err := q.Get(ctx)
		assert.NoError(t, err)
		assert.Equal(t, i, msg.Sequence())
	}
	assert.False(t, q.Has())
}

func TestQueueOverwriteDropsOldest(t *testing.T) {
	q := NewMessageQueue(2, false)
	ctx := context.Background()

	assert.NoError(t, q.Send(ctx, buf(0)))
	assert.NoError(t, q.Send(ctx, buf(1)))
	// Full queue: this send must not block and must evict seq 0.
	assert.NoError(t, q.Send(ctx, buf(2)))

	assert.Equal(t, 2, q.Len())
	msg, err := q.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), msg.Sequence())
	msg, err = q.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), msg.Sequence())
}

func TestQueueBlockingSendWaitsForSpace(t *testing.T) {
	q := NewMessageQueue(1, true)
	ctx := context.Background()

	assert.NoError(t, q.Send(ctx, buf(0)))

	sent := make(chan error, 1)
	go func() {
		sent <- q.Send(ctx, buf(1))
	}()

	select {
	case <-sent:
		t.Fatal("send on a full blocking queue returned before space was made")
	case <-time.After(20 * time.Millisecond):
	}

	msg, err := q.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), msg.Sequence())

	assert.NoError(t, <-sent)
	msg, err = q.Get(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), msg.Sequence())
}

func TestQueueSendCancelled(t *testing.T) {
	q := NewMessageQueue(1, true)
	assert.NoError(t, q.Send(context.Background(), buf(0)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- q.Send(ctx, buf(1))
	}()
	cancel()
	assert.IsError(t, <-done, context.Canceled)
	assert.Equal(t, 1, q.Len())
}

func TestQueueTrySend(t *testing.T) {
	t.Run("full blocking queue refuses", func(t *testing.T) {
		q := NewMessageQueue(1, true)
		assert.True(t, q.TrySend(buf(0)))
		assert.False(t, q.TrySend(buf(1)))
		assert.Equal(t, 1, q.Len())
	})

	t.Run("full overwrite queue evicts", func(t *testing.T) {
		q := NewMessageQueue(1, false)
		assert.True(t, q.TrySend(buf(0)))
		assert.True(t, q.TrySend(buf(1)))
		msg, ok := q.TryGet()
		assert.True(t, ok)
		assert.Equal(t, int64(1), msg.Sequence())
	})
}

func TestQueueGetBlocksUntilSend(t *testing.T) {
	q := NewMessageQueue(2, true)
	ctx := context.Background()

	got := make(chan datatype.Message, 1)
	go func() {
		msg, err := q.Get(ctx)
		if err == nil {
			got <- msg
		}
	}()

	time.Sleep(10 * time.Millisecond)
	assert.NoError(t, q.Send(ctx, buf(7)))

	select {
	case msg := <-got:
		assert.Equal(t, int64(7), msg.Sequence())
	case <-time.After(time.Second):
		t.Fatal("Get did not observe the sent message")
	}
}

func TestQueueGetCancelled(t *testing.T) {
	q := NewMessageQueue(2, true)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := q.Get(ctx)
		done <- err
	}()
	cancel()
	assert.IsError(t, <-done, context.Canceled)
}

func TestQueueClose(t *testing.T) {
	t.Run("drains queued messages before erroring", func(t *testing.T) {
		q := NewMessageQueue(4, true)
		ctx := context.Background()
		assert.NoError(t, q.Send(ctx, buf(0)))
		q.Close()

		msg, err := q.Get(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), msg.Sequence())

		_, err = q.Get(ctx)
		assert.IsError(t, err, ErrQueueClosed)
	})

	t.Run("wakes blocked consumer", func(t *testing.T) {
		q := NewMessageQueue(4, true)
		done := make(chan error, 1)
		go func() {
			_, err := q.Get(context.Background())
			done <- err
		}()
		time.Sleep(10 * time.Millisecond)
		q.Close()
		assert.IsError(t, <-done, ErrQueueClosed)
	})

	t.Run("wakes blocked producer", func(t *testing.T) {
		q := NewMessageQueue(1, true)
		assert.NoError(t, q.Send(context.Background(), buf(0)))
		done := make(chan error, 1)
		go func() {
			done <- q.Send(context.Background(), buf(1))
		}()
		time.Sleep(10 * time.Millisecond)
		q.Close()
		assert.IsError(t, <-done, ErrQueueClosed)
	})

	t.Run("idempotent", func(t *testing.T) {
		q := NewMessageQueue(1, true)
		q.Close()
		q.Close()
		assert.True(t, q.Closed())
	})
}

func TestQueueGetAll(t *testing.T) {
	q := NewMessageQueue(4, true)
	ctx := context.Background()

	assert.Equal(t, 0, len(q.TryGetAll()))

	for i := int64(0); i < 3; i++ {
		assert.NoError(t, q.Send(ctx, buf(i)))
	}
	all, err := q.GetAll(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(all))
	assert.Equal(t, int64(0), all[0].Sequence())
	assert.Equal(t, int64(2), all[2].Sequence())
	assert.False(t, q.Has())
}

func TestQueueTypedAccess(t *testing.T) {
	q := NewMessageQueue(4, true)
	ctx := context.Background()

	frame := &datatype.ImgFrame{Buffer: datatype.Buffer{Seq: 1}, Width: 640, Height: 480}
	assert.NoError(t, q.Send(ctx, frame))
	assert.NoError(t, q.Send(ctx, buf(2)))

	t.Run("front probe", func(t *testing.T) {
		assert.True(t, HasAs[*datatype.ImgFrame](q))
		got, ok := FrontAs[*datatype.ImgFrame](q)
		assert.True(t, ok)
		assert.Equal(t, 640, got.Width)
		// Probing must not consume.
		assert.Equal(t, 2, q.Len())
	})

	t.Run("mismatched front stays queued", func(t *testing.T) {
		_, ok := TryGetAs[*datatype.NNData](q)
		assert.False(t, ok)
		assert.Equal(t, 2, q.Len())
	})

	t.Run("matching front pops", func(t *testing.T) {
		got, ok := TryGetAs[*datatype.ImgFrame](q)
		assert.True(t, ok)
		assert.Equal(t, int64(1), got.Sequence())
		assert.Equal(t, 1, q.Len())
	})

	t.Run("blocking typed get reports mismatch", func(t *testing.T) {
		_, err := GetAs[*datatype.ImgFrame](ctx, q)
		assert.IsError(t, err, ErrWrongKind)
		// The plain buffer is still there for an untyped consumer.
		msg, err := q.Get(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), msg.Sequence())
	})
}
