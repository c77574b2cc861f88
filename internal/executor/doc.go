// Package executor queues tool calls behind a single FIFO with bounded
// concurrency. With Concurrency 1 tools run strictly one after another in
// enqueue order, which is what script execution against a single Studio
// session needs.
//
// Every call ends in a tool_result pushed to the originating connection via
// the Notifier, and in an Outcome for the caller. Failures, including
// unknown tools and panics, never stop the queue.
package executor
