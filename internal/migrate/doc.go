// Package migrate orchestrates versioned schema upgrades of a TabVault
// store.
//
// Each registered step targets one schema version and runs inside its own
// transaction. Perform executes pending steps strictly in increasing
// version order; a step failure triggers that step's rollback (when it has
// one) and halts the run — later steps are never attempted, and steps that
// already committed stay committed. After the last step, structural
// validation confirms every declared container and index exists, and an
// optional referential sweep checks the data itself; only then is the new
// version stamped into the store metadata. A post-execution validation
// failure therefore reports the migration as failed even though the schema
// changes already landed.
package migrate
