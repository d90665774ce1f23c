// Package coop runs a set of tasks on a single cooperative loop.
//
// Exactly one task executes at a time. A task gives up the loop only at
// explicit suspension points (Task.Await, Task.Sleep, Task.Yield); while it
// is suspended the next ready task runs. Tasks start in the order they are
// passed to Run and are resumed in the order their awaited operations
// complete.
//
// A failing task never cancels its siblings. Only a task returning a
// non-nil error from its TaskFunc, or cancellation of the context passed to
// Run, aborts the loop, and Run then returns without waiting for the
// remaining tasks.
package coop
