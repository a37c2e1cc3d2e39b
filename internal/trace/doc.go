// Package trace records the phases of a fix session: worker calls, project
// loading, analysis passes and fix applications.
//
// Enable it from the command line:
//
//	autofix fix --trace=- --trace-level=pass app.fixproj
//
// Sinks are a Writer that formats each event as it happens, a Recorder
// that keeps the last events for a dump after a failure, and a LogTracer
// that turns them into debug entries of the session logger. Tee combines
// them. The tracer and the innermost open span travel in the context.
package trace
