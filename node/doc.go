// Package node implements the shared execution tree of goosea.
//
// A tree is built once from a program image and then executed by any
// number of sessions. Each Instruction is bound to one address and keeps a
// speculative copy of the last instruction word it fetched there; the
// session's CPU model is resolved per call through an Accessor, so the
// tree itself never references a session.
package node
