/*
Package log provides structured logging for Warp using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. The simulation kernel routes its event trace
through this package at trace level, so a single switch turns the full
per-event record (virtual time, event id, payload JSON) on or off.

# Architecture

Warp's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: trace/debug/info/warn/error       │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Child Loggers                       │          │
	│  │  - WithComponent("simulation")              │          │
	│  │  - WithProcess("replica-2")                 │          │
	│  │  - WithRunID("run-abc123")                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "trace",                        │          │
	│  │    "component": "simulation",               │          │
	│  │    "t": 10.5,                               │          │
	│  │    "message": "event delivered"             │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2025-01-02T10:30:00Z TRC event delivered   │          │
	│  │    component=simulation                     │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Usage

Initialize once at startup, then derive child loggers per component:

	log.Init(log.Config{Level: log.DebugLevel, JSONOutput: true})
	logger := log.WithComponent("network")
	logger.Debug().Float64("t", sim.Time()).Msg("transfer started")

Event-trace emission is guarded by TraceEnabled so payload serialization is
skipped entirely when the trace level is off.
*/
package log
