package flowdag

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
)

// Test helper: node exposing a demand-driven set of inputs.
type testFanIn struct {
	BaseNode
	Inputs *InputMap
}

func newTestFanIn() *testFanIn {
	n := &testFanIn{}
	InitBase(n)
	n.Inputs = NewInputMap(n, "inputs", InputConfig{QueueSize: 4})
	return n
}

func (n *testFanIn) TypeName() string { return "test-fanin" }

// Test helper: node exposing a demand-driven set of outputs.
type testFanOut struct {
	BaseNode
	Outputs *OutputMap
}

func newTestFanOut() *testFanOut {
	n := &testFanOut{}
	InitBase(n)
	n.Outputs = NewOutputMap(n, "outputs", OutputConfig{})
	return n
}

func (n *testFanOut) TypeName() string { return "test-fanout" }

func TestInputMapMaterializesLazily(t *testing.T) {
	n := newTestFanIn()
	assert.Equal(t, 0, n.Inputs.Len())
	assert.False(t, n.Inputs.Has("left"))

	left := n.Inputs.Get("left")
	assert.True(t, n.Inputs.Has("left"))
	assert.Equal(t, 1, n.Inputs.Len())
	assert.Equal(t, PortKey{Group: "inputs", Name: "left"}, left.Key())
	// The template's queue configuration carries over.
	assert.Equal(t, 4, left.QueueSize())

	// Same key, same port.
	assert.Equal(t, left, n.Inputs.Get("left"))
	assert.Equal(t, 1, n.Inputs.Len())
}

func TestInputMapPortsRegisterOnNode(t *testing.T) {
	n := newTestFanIn()
	n.Inputs.Get("a")
	n.Inputs.Get("b")

	in, ok := n.InputIn("inputs", "a")
	assert.True(t, ok)
	assert.Equal(t, "a", in.Name())

	ports := n.Inputs.Ports()
	assert.Equal(t, 2, len(ports))
	assert.Equal(t, "a", ports[0].Name())
	assert.Equal(t, "b", ports[1].Name())
}

func TestOutputMapLinksLikeDeclaredPorts(t *testing.T) {
	p := New()
	fan := newTestFanOut()
	sink := newTestNode()
	assert.NoError(t, p.Add(fan))
	assert.NoError(t, p.Add(sink))

	out := fan.Outputs.Get("preview")
	assert.NoError(t, p.Link(out, sink.In))

	assert.NoError(t, out.Send(context.Background(), buf(9)))
	msg, ok := sink.In.TryGet()
	assert.True(t, ok)
	assert.Equal(t, int64(9), msg.Sequence())

	conns := p.Connections()
	assert.Equal(t, 1, len(conns))
	assert.Equal(t, "preview", conns[0].OutputName)
	assert.Equal(t, "outputs", conns[0].OutputGroup)
}

func TestMapFedBySeveralGroups(t *testing.T) {
	n := newTestFanIn()
	a := n.Inputs.GetWithGroup("trackers", "0")
	b := n.Inputs.GetWithGroup("detections", "0")
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, 2, n.Inputs.Len())
}
