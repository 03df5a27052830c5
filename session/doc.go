// Package session binds execution contexts to the calls that run a shared
// execution tree.
package session
