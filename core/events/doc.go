// Package events defines the typed domain event contract emitted by the
// communication orchestrator and its transport handlers.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_turn.*
//   - agent_turn.*
//   - action.*
//   - signal.*
//   - engine.*
//   - playback.*
//
// Semantics used across the package:
//
//   - Received: a normalized inbound record, attributed to a participant.
//   - Materialized: an agent turn whose speech synthesis has resolved and
//     which is ready for sequential playback.
//   - Interim: a mutable point-in-time snapshot that can change over time;
//     only final records ever become Received events.
package events
