package graph

import "errors"

// Build-time validation failures. Build wraps them with the graph and node
// names involved; use errors.Is to match.
var (
	ErrNoEntry         = errors.New("graph: no entry node")
	ErrMultipleEntries = errors.New("graph: more than one entry node")
	ErrDuplicateNode   = errors.New("graph: duplicate node name")
	ErrUnknownNode     = errors.New("graph: unknown node")
	ErrMultipleParents = errors.New("graph: node has more than one exec parent")
	ErrNotExecutable   = errors.New("graph: exec pin targets a node that cannot be activated")
	ErrCycle           = errors.New("graph: cycle")
	ErrUnknownOutput   = errors.New("graph: unknown exec output")
	ErrUnknownInput    = errors.New("graph: unknown input pin")
	ErrUnknownSlot     = errors.New("graph: unknown output slot")
	ErrMissingInput    = errors.New("graph: required input not connected")
	ErrUnreachable     = errors.New("graph: node unreachable from entry")
	ErrInvalidTag      = errors.New("graph: invalid layer tag")
	ErrInvalidModifier = errors.New("graph: invalid attribute modifier")
)
