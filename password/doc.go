// Package password hashes and verifies account passwords.
//
// New hashes are argon2id in PHC form:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes still verify. [Argon2.NeedsUpgrade] reports true for
// them and for argon2id hashes made with weaker parameters, so the engine can
// rehash after the next successful signin.
//
// Password policy beyond a minimum length belongs to the engine.
package password
