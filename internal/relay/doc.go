// Package relay implements the event routing and resolution core: it
// classifies inbound tracking-system change events, walks the entity graph
// to the affected people, composes per-category notification bodies, and
// fans them out through the chat directory under a shared admission gate.
//
// The package is deliberately transport-free. The webhook listener hands it
// a parsed Envelope; the tracking source and chat directory are capability
// interfaces injected at construction.
package relay
