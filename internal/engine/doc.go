// Package engine executes schedules.
//
// A Distributor resolves schedule ids against a registry and hands each
// run to an Executor. The default executor, Traversal, walks the graph on
// its own goroutine:
//
//  1. Process the current vertex with the processor for its variant.
//  2. Stop on a completed, canceled or failed verdict.
//  3. Otherwise follow the first outgoing edge, in declaration order, that
//     is unconditional or whose condition evaluates true.
//
// Sub-schedule vertices start nested runs through the same distributor
// and continue immediately. Synchronization end vertices block until the
// runs dispatched inside their block have finished.
//
// Every processed vertex is stamped by a logical Clock shared by all runs
// of a distributor, so observers see one total order of visits across
// concurrent runs. Wall-clock time is never used for ordering.
package engine
