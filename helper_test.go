package flowdag

import (
	"context"
	"errors"

	"github.com/flowdag/flowdag/datatype"
)

// Test helper: minimal source node with one output.
type testSource struct {
	ThreadedNode
	Out *Output

	msgs []datatype.Message
}

func newTestSource(msgs ...datatype.Message) *testSource {
	n := &testSource{msgs: msgs}
	InitBase(n)
	n.Out = NewOutput(n, OutputConfig{Name: "out"})
	return n
}

func (n *testSource) TypeName() string { return "test-source" }

func (n *testSource) Run(ctx context.Context) error {
	for _, m := range n.msgs {
		if err := n.Out.Send(ctx, m); err != nil {
			return err
		}
	}
	return ErrEndOfStream
}

// Test helper: minimal sink node collecting everything it receives.
type testSink struct {
	ThreadedNode
	In *Input

	got  chan datatype.Message
	want int
}

func newTestSink(want int) *testSink {
	n := &testSink{got: make(chan datatype.Message, 128), want: want}
	InitBase(n)
	n.In = NewInput(n, InputConfig{Name: "in"})
	return n
}

func (n *testSink) TypeName() string { return "test-sink" }

func (n *testSink) Run(ctx context.Context) error {
	for i := 0; i < n.want; i++ {
		msg, err := n.In.Get(ctx)
		if errors.Is(err, ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		n.got <- msg
	}
	return nil
}

// Test helper: passive node with declared ports and no execution loop.
type testNode struct {
	BaseNode
	Out *Output
	In  *Input
}

func newTestNode() *testNode {
	n := &testNode{}
	InitBase(n)
	n.Out = NewOutput(n, OutputConfig{Name: "out"})
	n.In = NewInput(n, InputConfig{Name: "in"})
	return n
}

func (n *testNode) TypeName() string { return "test-node" }

// Test helper: container node for subgraph tests.
type testContainer struct {
	BaseNode
}

func newTestContainer() *testContainer {
	n := &testContainer{}
	InitBase(n)
	return n
}

func (n *testContainer) TypeName() string { return "test-container" }

func buf(seq int64) *datatype.Buffer {
	return &datatype.Buffer{Seq: seq}
}
