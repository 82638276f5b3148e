package flowdag

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/flowdag/flowdag/datatype"
)

func TestCanConnect(t *testing.T) {
	t.Run("compatible same-pipeline ports", func(t *testing.T) {
		p := New()
		a, b := newTestNode(), newTestNode()
		assert.NoError(t, p.Add(a))
		assert.NoError(t, p.Add(b))
		assert.True(t, a.Out.CanConnect(b.In))
	})

	t.Run("different pipelines refuse", func(t *testing.T) {
		p1, p2 := New(), New()
		a, b := newTestNode(), newTestNode()
		assert.NoError(t, p1.Add(a))
		assert.NoError(t, p2.Add(b))
		assert.False(t, a.Out.CanConnect(b.In))
		assert.IsError(t, p1.Link(a.Out, b.In), ErrInvalidLink)
	})

	t.Run("unplaced nodes refuse", func(t *testing.T) {
		a, b := newTestNode(), newTestNode()
		assert.False(t, a.Out.CanConnect(b.In))
	})

	t.Run("disjoint datatypes refuse", func(t *testing.T) {
		p := New()
		a, b := &testNode{}, &testNode{}
		InitBase(a)
		InitBase(b)
		a.Out = NewOutput(a, OutputConfig{Name: "out", Types: []datatype.Hierarchy{{Kind: datatype.KindImgFrame}}})
		b.In = NewInput(b, InputConfig{Name: "in", Types: []datatype.Hierarchy{{Kind: datatype.KindNNData}}})
		assert.NoError(t, p.Add(a))
		assert.NoError(t, p.Add(b))
		assert.False(t, a.Out.CanConnect(b.In))
		assert.IsError(t, p.Link(a.Out, b.In), ErrInvalidLink)
	})

	t.Run("descendant kinds match", func(t *testing.T) {
		p := New()
		a, b := &testNode{}, &testNode{}
		InitBase(a)
		InitBase(b)
		a.Out = NewOutput(a, OutputConfig{Name: "out", Types: []datatype.Hierarchy{{Kind: datatype.KindSpatialImgDetections}}})
		b.In = NewInput(b, InputConfig{Name: "in", Types: []datatype.Hierarchy{{Kind: datatype.KindImgDetections, Descendants: true}}})
		assert.NoError(t, p.Add(a))
		assert.NoError(t, p.Add(b))
		assert.True(t, a.Out.CanConnect(b.In))
	})
}

func TestLink(t *testing.T) {
	t.Run("linking twice fails", func(t *testing.T) {
		p := New()
		a, b := newTestNode(), newTestNode()
		assert.NoError(t, p.Add(a))
		assert.NoError(t, p.Add(b))
		assert.NoError(t, p.Link(a.Out, b.In))
		assert.IsError(t, p.Link(a.Out, b.In), ErrInvalidLink)
		assert.Equal(t, 1, len(p.Connections()))
	})

	t.Run("unlink removes the connection", func(t *testing.T) {
		p := New()
		a, b := newTestNode(), newTestNode()
		assert.NoError(t, p.Add(a))
		assert.NoError(t, p.Add(b))
		assert.NoError(t, p.Link(a.Out, b.In))
		assert.NoError(t, p.Unlink(a.Out, b.In))
		assert.Equal(t, 0, len(p.Connections()))
		assert.Equal(t, 0, a.Out.fanOut())
	})

	t.Run("unlinking a non-connection fails", func(t *testing.T) {
		p := New()
		a, b := newTestNode(), newTestNode()
		assert.NoError(t, p.Add(a))
		assert.NoError(t, p.Add(b))
		assert.IsError(t, p.Unlink(a.Out, b.In), ErrInvalidUnlink)
	})

	t.Run("relink after unlink works", func(t *testing.T) {
		p := New()
		a, b := newTestNode(), newTestNode()
		assert.NoError(t, p.Add(a))
		assert.NoError(t, p.Add(b))
		assert.NoError(t, p.Link(a.Out, b.In))
		assert.NoError(t, p.Unlink(a.Out, b.In))
		assert.NoError(t, p.Link(a.Out, b.In))
		assert.Equal(t, 1, len(p.Connections()))
	})
}

func TestSendFanOut(t *testing.T) {
	p := New()
	src := newTestNode()
	s1, s2 := newTestNode(), newTestNode()
	assert.NoError(t, p.Add(src))
	assert.NoError(t, p.Add(s1))
	assert.NoError(t, p.Add(s2))
	assert.NoError(t, p.Link(src.Out, s1.In))
	assert.NoError(t, p.Link(src.Out, s2.In))

	ctx := context.Background()
	for i := int64(0); i < 3; i++ {
		assert.NoError(t, src.Out.Send(ctx, buf(i)))
	}

	// Every connected input observes the full stream in order.
	for _, sink := range []*testNode{s1, s2} {
		for i := int64(0); i < 3; i++ {
			msg, err := sink.In.Get(ctx)
			assert.NoError(t, err)
			assert.Equal(t, i, msg.Sequence())
		}
	}
}

func TestSendWithoutConnections(t *testing.T) {
	p := New()
	a := newTestNode()
	assert.NoError(t, p.Add(a))
	// No links: the message vanishes without error.
	assert.NoError(t, a.Out.Send(context.Background(), buf(0)))
	assert.True(t, a.Out.TrySend(buf(1)))
}

func TestTrySendPartialDelivery(t *testing.T) {
	p := New()
	src := newTestNode()

	full := &testNode{}
	InitBase(full)
	full.Out = NewOutput(full, OutputConfig{Name: "out"})
	full.In = NewInput(full, InputConfig{Name: "in", QueueSize: 1})

	roomy := newTestNode()

	assert.NoError(t, p.Add(src))
	assert.NoError(t, p.Add(full))
	assert.NoError(t, p.Add(roomy))
	assert.NoError(t, p.Link(src.Out, full.In))
	assert.NoError(t, p.Link(src.Out, roomy.In))

	assert.True(t, src.Out.TrySend(buf(0)))
	// full's queue is at capacity now; the next TrySend reports failure but
	// still delivers to the queue with room.
	assert.False(t, src.Out.TrySend(buf(1)))
	assert.Equal(t, 1, full.In.Queue().Len())
	assert.Equal(t, 2, roomy.In.Queue().Len())
}

func TestOutputQueue(t *testing.T) {
	p := New()
	a := newTestNode()
	assert.NoError(t, p.Add(a))

	// An ad-hoc queue taps the stream without an input port.
	q := a.Out.Queue()
	assert.NoError(t, a.Out.Send(context.Background(), buf(5)))
	msg, ok := q.TryGet()
	assert.True(t, ok)
	assert.Equal(t, int64(5), msg.Sequence())

	assert.NoError(t, a.Out.Unlink(q))
	assert.IsError(t, a.Out.Unlink(q), ErrInvalidUnlink)
}

func TestInputEqual(t *testing.T) {
	n := newTestNode()
	other := newTestNode()

	assert.True(t, n.In.Equal(n.In))
	assert.False(t, n.In.Equal(other.In))
	assert.False(t, n.In.Equal(nil))
}

func TestPortKeyString(t *testing.T) {
	assert.Equal(t, "video", PortKey{Name: "video"}.String())
	assert.Equal(t, "outputs/left", PortKey{Group: "outputs", Name: "left"}.String())
}

func TestDuplicatePortPanics(t *testing.T) {
	n := newTestNode()
	defer func() {
		assert.NotZero(t, recover())
	}()
	NewOutput(n, OutputConfig{Name: "out"})
}
