// Package password hashes purchaser passwords and the rotated admin secret
// with Argon2id, encoded in PHC string form.
//
// Hashes carry their own parameters, so raising the cost in [Config] keeps
// old hashes verifiable while [Hasher.NeedsRehash] reports them as stale.
package password
