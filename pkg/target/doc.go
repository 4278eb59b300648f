// Package target controls a single traced child process on linux/amd64:
// spawning it under ptrace, resuming and single-stepping it, word granular
// memory and register access, software breakpoints and frame pointer based
// stack unwinding.
package target
