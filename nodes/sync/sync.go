// Package sync provides a node that aligns several input streams by sequence
// number and emits one MessageGroup per aligned set.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/flowdag/flowdag"
	"github.com/flowdag/flowdag/datatype"
)

func init() {
	flowdag.Register("sync", func() (flowdag.Node, error) {
		return New(), nil
	})
}

// DefaultMaxPending bounds how many distinct sequence numbers may sit
// half-assembled before the oldest is abandoned.
const DefaultMaxPending = 32

// Node groups messages that share a sequence number across its inputs.
// Slots are materialized on demand through the port maps; linking a new
// upstream to Inputs.Get("left") creates the "left" slot.
//
// Slots behind Inputs are required: a group is emitted only once every one
// of them holds a message for the sequence. Slots behind Optional join a
// group when their message happens to be present but never hold one back.
// Messages for sequences older than the last emitted group are dropped.
type Node struct {
	flowdag.ThreadedNode

	Inputs   *flowdag.InputMap
	Optional *flowdag.InputMap
	Out      *flowdag.Output

	maxPending int
}

func New() *Node {
	n := &Node{maxPending: DefaultMaxPending}
	flowdag.InitBase(n)
	n.Inputs = flowdag.NewInputMap(n, "inputs", flowdag.InputConfig{
		Kind:           flowdag.InputStream,
		WaitForMessage: true,
	})
	n.Optional = flowdag.NewInputMap(n, "optional", flowdag.InputConfig{
		Kind:      flowdag.InputStream,
		Overwrite: true,
	})
	n.Out = flowdag.NewOutput(n, flowdag.OutputConfig{
		Name:  "out",
		Types: []datatype.Hierarchy{{Kind: datatype.KindMessageGroup}},
	})
	return n
}

func (n *Node) TypeName() string { return "sync" }

// SetMaxPending bounds the number of half-assembled groups kept in flight.
func (n *Node) SetMaxPending(max int) {
	if max > 0 {
		n.maxPending = max
	}
}

// Configure accepts "max_pending" (int).
func (n *Node) Configure(params map[string]any) error {
	for key, val := range params {
		switch key {
		case "max_pending":
			switch v := val.(type) {
			case int:
				n.SetMaxPending(v)
			case int64:
				n.SetMaxPending(int(v))
			case float64:
				n.SetMaxPending(int(v))
			default:
				return fmt.Errorf("sync: param %q: expected int, got %T", key, val)
			}
		default:
			return fmt.Errorf("sync: unknown param %q", key)
		}
	}
	return nil
}

func (n *Node) BuildStage2() error {
	if n.Inputs.Len() == 0 {
		return fmt.Errorf("%w: sync node has no inputs", flowdag.ErrUnconfiguredNode)
	}
	return nil
}

type arrival struct {
	slot string
	msg  datatype.Message
}

func (n *Node) Run(ctx context.Context) error {
	inputs := append(n.Inputs.Ports(), n.Optional.Ports()...)
	if len(inputs) == 0 {
		return fmt.Errorf("%w: sync node has no inputs", flowdag.ErrUnconfiguredNode)
	}

	required := make(map[string]bool)
	for _, in := range inputs {
		if in.WaitForMessage() {
			required[in.Name()] = true
		}
	}
	if len(required) == 0 {
		for _, in := range inputs {
			required[in.Name()] = true
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	arrivals := make(chan arrival)
	g, gctx := errgroup.WithContext(runCtx)
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			for {
				msg, err := in.Get(gctx)
				if errors.Is(err, flowdag.ErrQueueClosed) {
					return nil
				}
				if err != nil {
					return err
				}
				select {
				case arrivals <- arrival{slot: in.Name(), msg: msg}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}

	readersDone := make(chan error, 1)
	go func() {
		readersDone <- g.Wait()
		close(arrivals)
	}()

	// The readers must unwind even when the assembler fails, or Wait would
	// block on goroutines still parked in Get.
	err := n.assemble(runCtx, arrivals, required)
	cancel()
	rerr := <-readersDone
	if err != nil {
		return err
	}
	if errors.Is(rerr, context.Canceled) {
		return nil
	}
	return rerr
}

func (n *Node) assemble(ctx context.Context, arrivals <-chan arrival, required map[string]bool) error {
	pending := make(map[int64]map[string]datatype.Message)
	var emitted int64 = -1
	log := n.Log()

	for a := range arrivals {
		seq := a.msg.Sequence()
		if seq <= emitted {
			log.Debug("dropping stale message", "slot", a.slot, "seq", seq)
			continue
		}
		group, ok := pending[seq]
		if !ok {
			group = make(map[string]datatype.Message)
			pending[seq] = group
		}
		group[a.slot] = a.msg

		if !complete(group, required) {
			n.evictOldest(pending, log)
			continue
		}

		delete(pending, seq)
		for s := range pending {
			if s < seq {
				delete(pending, s)
			}
		}
		emitted = seq
		if err := n.Out.Send(ctx, &datatype.MessageGroup{Seq: seq, Members: group}); err != nil {
			return err
		}
	}
	return nil
}

func complete(group map[string]datatype.Message, required map[string]bool) bool {
	for slot := range required {
		if _, ok := group[slot]; !ok {
			return false
		}
	}
	return true
}

// evictOldest abandons the oldest half-assembled group once too many
// sequences are in flight, so a dead upstream cannot grow memory unbounded.
func (n *Node) evictOldest(pending map[int64]map[string]datatype.Message, log *slog.Logger) {
	if len(pending) <= n.maxPending {
		return
	}
	oldest := int64(-1)
	for s := range pending {
		if oldest < 0 || s < oldest {
			oldest = s
		}
	}
	delete(pending, oldest)
	log.Debug("abandoning incomplete group", "seq", oldest)
}
