/*
Run implements the deterministic event pipeline and its lifecycle.

# Module
  - engine: single-writer per-tick pipeline (generate, fuse, decide, gate, fill, account)
  - controller: lifecycle state machine over start/pause/resume/stop/reset with an absorbing halt
  - supervisor: restarts non-critical consumers with exponential backoff

# Source
 1. synthetic prediction and lagged market ticks from gen
 2. predictor ticks from feed adapters
 3. control commands from the one-shot control slot

# Produce
  - lossless critical events (intents, fills, rejects, portfolio updates, halt)
  - lossy telemetry (price snapshots, strategy perf, execution log)
  - replay CSV rows

# Sharded
  - none; one run per process
*/
package run
