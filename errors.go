package flowdag

import "errors"

var (
	// ErrInvalidLink is returned by link establishment when the two ports
	// cannot be connected or are already connected.
	ErrInvalidLink = errors.New("invalid link")
	// ErrInvalidUnlink is returned when unlinking a pair that is not
	// currently connected.
	ErrInvalidUnlink = errors.New("invalid unlink")
	// ErrUnconfiguredNode is returned when a node begins execution without
	// its mandatory configuration.
	ErrUnconfiguredNode = errors.New("node not configured")
	// ErrEndOfStream signals that a source node's data is depleted. It marks
	// clean completion, not failure.
	ErrEndOfStream = errors.New("end of stream")
	// ErrQueueClosed is returned by queue operations after Close.
	ErrQueueClosed = errors.New("message queue closed")
	// ErrWrongKind is returned by typed queue retrieval when the front
	// message is not of the requested type.
	ErrWrongKind = errors.New("message kind mismatch")
	// ErrNodeNotFound is returned by id or child lookups.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNodeAlreadyPlaced is returned when adding a node that already
	// belongs to a pipeline graph.
	ErrNodeAlreadyPlaced = errors.New("node already placed on a pipeline")
	// ErrUnknownNodeType is returned by registry lookups.
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrLifecycle is returned on an invalid lifecycle transition.
	ErrLifecycle = errors.New("invalid lifecycle transition")
)
