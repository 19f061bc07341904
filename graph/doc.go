// Package graph implements the workflow graph engine: a typed state-carrying
// directed graph with conditional edges, a single entry node, one or more
// terminal nodes and deterministic successor selection, plus prebuilt
// workflows that sequence fabric agents for composite jobs.
//
// Execution runs on the caller's goroutine. Nodes read and write the shared
// State in place; the first outgoing edge whose predicate holds selects the
// successor, ties broken by edge insertion order. Loops are expressed by
// directing an edge back to an earlier node; callers bound refinement loops
// with a counter kept in State — the engine enforces no iteration cap.
package graph
