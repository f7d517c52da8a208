// Package lifecycle coordinates the staged lifecycle of a multi-party
// collaborative game session and the entities it owns: party seats,
// generated participants, and the pre-session content draft.
//
// The package holds the pure, I/O-free building blocks: the entity and
// state enumerations, the injected transition registry, the declarative
// requirement tables that gate sensitive transitions, the shared error
// taxonomy, and the logging contract. Persistence, compensation, retry,
// idempotency, and the orchestration facade live in the subpackages
// store, txn, runner, idempotency, notify, and orchestrator.
package lifecycle
