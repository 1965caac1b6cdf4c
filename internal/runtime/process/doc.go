// Package process provides a launcher that starts the supervised executable as
// a local child process.
//
// Children inherit the supervisor's standard streams. When process-group mode
// is enabled on Unix, the child is placed in its own process group and
// signals are delivered to every member of that group; otherwise only the
// direct child is signalled. On Windows there is no SIGTERM equivalent, so
// Signal terminates the top-level process.
package process
