// Package lifetime implements the ownership framework for the
// acquisition object graph.
//
// Every entity in the runtime follows exactly one of two lifetime
// disciplines, chosen at its definition site:
//
//   - Application-owned (embed AppOwned): the entity lives until the
//     application destroys it, which runs the destructor and releases the
//     underlying resource. Handles on the entity (a session holding a
//     device, a child pinning its parent) block destruction until they
//     are closed.
//
//   - Parent-owned (embed ParentOwned): the entity's storage belongs to a
//     parent entity. It starts unbound, with no externally visible handle.
//     Binding to the parent yields the first handle and pins the parent so
//     it cannot be destroyed while child handles exist. When the last child
//     handle is closed the pin is released; the child's state persists for
//     as long as the parent does, and a later Retain re-pins the parent.
//     At most one pin exists at a time regardless of how many handles are
//     handed out.
//
// Misusing the framework (binding twice, binding to a nil or destroyed
// parent, retaining an unbound child, destroying an entity with handles
// outstanding) is a programming error reported as a Bug-coded error.
// The operation is aborted with no partial state change; the process is
// never taken down.
//
// All reference counts are mutex-protected, so handles may be created and
// closed concurrently from multiple goroutines.
package lifetime
