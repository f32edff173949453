// Package manager owns the served model: it loads the inference backend once,
// admits generation requests through a bounded queue and runs the
// tokenize → generate → decode pipeline. It is structured into small files
// by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; New applies defaults.
//   - types.go: lifecycle State and the generation Result.
//   - errors.go: error types and helpers (IsTooBusy, IsDependencyUnavailable).
//   - load.go: load-once guard (Load, Warm).
//   - admission.go: queueing and generation admission.
//   - generate.go: the generation pipeline.
//   - cache.go: completion cache for greedy requests.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - close.go: draining shutdown.
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//   - metrics.go: Prometheus collectors.
//   - fromconfig.go: ManagerConfig and backend opener from config.Config.
//
// The HTTP layer receives a *Manager through dependency injection; there is
// no package-level model state.
package manager
