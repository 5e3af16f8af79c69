// Package password implements password hashing, verification, and composition policy.
//
// # Output format
//
// New hashes are Argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] also verifies bcrypt hashes carried over from the previous service and
// reports them through [Multi.NeedsUpgrade] so the engine can re-hash on login.
//
// # Architecture boundaries
//
// This package owns hashing and the [Policy] rules only. Deciding when the policy
// applies (registration, reset, password change) is the Engine's job.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other lmsauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
