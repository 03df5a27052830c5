// Package cpu implements the RV64I machine model and assembler for goosea.
//
// The model consists of a program counter, thirty-two 64-bit integer
// registers (x0 hardwired to zero), a paged little-endian memory, and a
// console tape mapped at CONSOLE_BASE. Control transfer instructions are
// not supported: instructions are ticked one address at a time by the
// execution tree in the node package.
//
// The assembler accepts a small RISC-V assembly dialect, supporting macros,
// labels, equates, and compile-time $(...) expression evaluation.
package cpu
