package flowdag

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowdag/flowdag/datatype"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// PortKey identifies a port within its node: an optional group namespace
// plus a name. Ports created through OutputMap/InputMap carry the map's
// group; directly declared ports usually leave it empty.
type PortKey struct {
	Group string
	Name  string
}

func (k PortKey) String() string {
	if k.Group == "" {
		return k.Name
	}
	return k.Group + "/" + k.Name
}

// OutputKind distinguishes the sender role of an output.
type OutputKind int

const (
	// OutputStream emits an open-ended stream of messages.
	OutputStream OutputKind = iota
	// OutputSingle emits (at most) one message per run.
	OutputSingle
)

// InputKind distinguishes the receiver role of an input.
type InputKind int

const (
	// InputSingle expects messages from a single sender.
	InputSingle InputKind = iota
	// InputStream expects a multi-message stream.
	InputStream
)

// OutputConfig declares an output port. A nil Types list defaults to
// Buffer-with-descendants, the widest possible declaration.
type OutputConfig struct {
	Group string
	Name  string
	Kind  OutputKind
	Types []datatype.Hierarchy
}

// Output is a typed sending endpoint owned by exactly one node. It fans each
// sent message out to every connected queue.
type Output struct {
	node  Node
	key   PortKey
	kind  OutputKind
	types []datatype.Hierarchy

	mu     sync.Mutex
	queues []*MessageQueue

	sent prometheus.Counter
}

// NewOutput declares an output on owner and registers it in the owner's port
// index. It panics if owner already has a port under the same (group, name):
// duplicate declarations are a node implementation bug.
func NewOutput(owner Node, cfg OutputConfig) *Output {
	types := cfg.Types
	if len(types) == 0 {
		types = []datatype.Hierarchy{{Kind: datatype.KindBuffer, Descendants: true}}
	}
	o := &Output{
		node:  owner,
		key:   PortKey{Group: cfg.Group, Name: cfg.Name},
		kind:  cfg.Kind,
		types: types,
	}
	owner.Base().registerOutput(o)
	return o
}

// Node returns the owning node.
func (o *Output) Node() Node { return o.node }

// Key returns the (group, name) key of this port.
func (o *Output) Key() PortKey { return o.key }

// Name returns the port name.
func (o *Output) Name() string { return o.key.Name }

// Group returns the port group, empty for ungrouped ports.
func (o *Output) Group() string { return o.key.Group }

// Kind returns the sender role of this output.
func (o *Output) Kind() OutputKind { return o.kind }

// Types returns the datatype hierarchies this output may emit.
func (o *Output) Types() []datatype.Hierarchy { return o.types }

func (o *Output) String() string {
	return fmt.Sprintf("%s.%s", nodeLabel(o.node), o.key)
}

// SamePipeline reports whether both ports' owning nodes are placed on the
// same pipeline graph.
func (o *Output) SamePipeline(in *Input) bool {
	op := o.node.Base().Pipeline()
	ip := in.node.Base().Pipeline()
	return op != nil && op == ip
}

// CanConnect reports whether this output may legally feed in: both nodes
// must live on the same pipeline and at least one datatype pair must be
// compatible. The check is pure; pipeline builders may call it for dry-run
// validation before Link.
func (o *Output) CanConnect(in *Input) bool {
	if !o.SamePipeline(in) {
		return false
	}
	return datatype.Compatible(o.types, in.types)
}

// Link registers queue as a fan-out target, bypassing Input entirely. It is
// the raw path for external consumers that want to read the stream without
// owning a full input port; no pipeline or datatype validation applies.
func (o *Output) Link(queue *MessageQueue) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, q := range o.queues {
		if q == queue {
			return fmt.Errorf("%w: queue already linked to %s", ErrInvalidLink, o)
		}
	}
	o.queues = append(o.queues, queue)
	return nil
}

// Unlink removes a previously linked queue.
func (o *Output) Unlink(queue *MessageQueue) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, q := range o.queues {
		if q == queue {
			o.queues = append(o.queues[:i], o.queues[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: queue not linked to %s", ErrInvalidUnlink, o)
}

// Queue creates a fresh default queue, links it, and returns it: an ad-hoc
// reader for this output's stream.
func (o *Output) Queue() *MessageQueue {
	q := NewMessageQueue(DefaultQueueSize, true)
	// A fresh queue can never be a duplicate entry.
	_ = o.Link(q)
	return q
}

// LinkTo establishes a validated connection to in, recording it on the
// lowest common ancestor of the two nodes. See Node.Link.
func (o *Output) LinkTo(in *Input) error {
	return linkPorts(o, in)
}

// UnlinkFrom tears down a previously established connection to in.
func (o *Output) UnlinkFrom(in *Input) error {
	return unlinkPorts(o, in)
}

// snapshot returns a stable copy of the current fan-out targets so a
// concurrent unlink cannot disturb an in-flight delivery.
func (o *Output) snapshot() []*MessageQueue {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*MessageQueue, len(o.queues))
	copy(out, o.queues)
	return out
}

// fanOut returns the current number of connected queues.
func (o *Output) fanOut() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queues)
}

// Send inserts msg into every connected queue, applying each queue's own
// policy independently. A slow blocking consumer stalls only its own
// insertion; the remaining queues still receive the message. Sending with no
// connections is a no-op.
func (o *Output) Send(ctx context.Context, msg datatype.Message) error {
	var err error
	for _, q := range o.snapshot() {
		if serr := q.Send(ctx, msg); serr != nil {
			err = multierr.Append(err, serr)
			continue
		}
		if o.sent != nil {
			o.sent.Inc()
		}
	}
	return err
}

// TrySend attempts a non-blocking insert into every connected queue. It
// reports true only if all insertions succeeded; on false the caller must
// assume partial delivery, with no indication of which queues accepted.
func (o *Output) TrySend(msg datatype.Message) bool {
	all := true
	for _, q := range o.snapshot() {
		if !q.TrySend(msg) {
			all = false
			continue
		}
		if o.sent != nil {
			o.sent.Inc()
		}
	}
	return all
}

// Connections returns the recorded connections originating at this output.
func (o *Output) Connections() []Connection {
	return connectionsFrom(o)
}

// InputConfig declares an input port. Queues default to blocking with
// DefaultQueueSize capacity; set Overwrite for drop-oldest semantics.
type InputConfig struct {
	Group string
	Name  string
	Kind  InputKind

	// Overwrite selects the non-blocking queue policy: a full queue drops
	// its oldest entry instead of stalling the producer.
	Overwrite bool

	// QueueSize bounds the owned queue; zero means DefaultQueueSize.
	QueueSize int

	// WaitForMessage hints that a multi-input node must wait for this input
	// before proceeding. The core only carries the flag; node
	// implementations consume it.
	WaitForMessage bool

	Types []datatype.Hierarchy
}

// Input is a typed receiving endpoint owned by exactly one node. It is a
// thin layer over its single MessageQueue, created at construction and
// shared with every Output linked to it.
type Input struct {
	node           Node
	key            PortKey
	kind           InputKind
	blocking       bool
	queueSize      int
	waitForMessage bool
	types          []datatype.Hierarchy

	queue *MessageQueue
}

// NewInput declares an input on owner and registers it in the owner's port
// index. It panics if owner already has a port under the same (group, name).
func NewInput(owner Node, cfg InputConfig) *Input {
	types := cfg.Types
	if len(types) == 0 {
		types = []datatype.Hierarchy{{Kind: datatype.KindBuffer, Descendants: true}}
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	in := &Input{
		node:           owner,
		key:            PortKey{Group: cfg.Group, Name: cfg.Name},
		kind:           cfg.Kind,
		blocking:       !cfg.Overwrite,
		queueSize:      size,
		waitForMessage: cfg.WaitForMessage,
		types:          types,
		queue:          NewMessageQueue(size, !cfg.Overwrite),
	}
	owner.Base().registerInput(in)
	return in
}

// Node returns the owning node.
func (in *Input) Node() Node { return in.node }

// Key returns the (group, name) key of this port.
func (in *Input) Key() PortKey { return in.key }

// Name returns the port name.
func (in *Input) Name() string { return in.key.Name }

// Group returns the port group, empty for ungrouped ports.
func (in *Input) Group() string { return in.key.Group }

// Kind returns the receiver role of this input.
func (in *Input) Kind() InputKind { return in.kind }

// Blocking reports whether a full queue stalls producers.
func (in *Input) Blocking() bool { return in.blocking }

// QueueSize returns the capacity the owned queue was created with.
func (in *Input) QueueSize() int { return in.queueSize }

// WaitForMessage reports the scheduling hint carried by this input.
func (in *Input) WaitForMessage() bool { return in.waitForMessage }

// Types returns the datatype hierarchies this input accepts.
func (in *Input) Types() []datatype.Hierarchy { return in.types }

// Queue returns the input's owned queue. The queue stays valid as long as
// any holder keeps a reference, even after the owning node is removed.
func (in *Input) Queue() *MessageQueue { return in.queue }

func (in *Input) String() string {
	return fmt.Sprintf("%s.%s", nodeLabel(in.node), in.key)
}

// Equal reports structural equality: same parent, key, role, and queue
// configuration. It detects duplicate port declarations.
func (in *Input) Equal(other *Input) bool {
	if other == nil {
		return false
	}
	return in.node == other.node &&
		in.key == other.key &&
		in.kind == other.kind &&
		in.blocking == other.blocking &&
		in.queueSize == other.queueSize &&
		in.waitForMessage == other.waitForMessage
}

// Has reports whether a message is waiting.
func (in *Input) Has() bool { return in.queue.Has() }

// Get blocks until a message is available or ctx is done.
func (in *Input) Get(ctx context.Context) (datatype.Message, error) {
	return in.queue.Get(ctx)
}

// TryGet returns the front message without waiting.
func (in *Input) TryGet() (datatype.Message, bool) {
	return in.queue.TryGet()
}

// GetAll blocks until at least one message is queued, then drains the queue.
func (in *Input) GetAll(ctx context.Context) ([]datatype.Message, error) {
	return in.queue.GetAll(ctx)
}

// TryGetAll drains the queue without waiting.
func (in *Input) TryGetAll() []datatype.Message {
	return in.queue.TryGetAll()
}
