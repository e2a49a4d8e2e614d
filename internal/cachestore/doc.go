// Package cachestore provides read-only access to on-disk cache stores.
//
// Four store variants exist, keyed by two independent flags:
//
//	                 directory              indexed (single file)
//	plain            PlainDirectory         PlainIndexed
//	encrypted        EncryptedDirectory     EncryptedIndexed
//
// Directory stores are BadgerDB directories. Indexed stores are single SQLite
// files with a CacheElement table. Encrypted variants derive their key from a
// passphrase with Argon2id:
//   - EncryptedDirectory uses Badger's native block encryption
//   - EncryptedIndexed seals each value with XChaCha20-Poly1305 and keeps a
//     sealed canary in CacheMeta so a wrong passphrase fails at open time
//
// # Read-only
//
// Readers never write to the store they open. SQLite files are opened with
// mode=ro and query_only, Badger directories with ReadOnly. The Seed functions
// exist to produce fixtures in the same formats.
//
// # Lock contention
//
// Opening a store that a writer is holding (SQLITE_BUSY, Badger directory
// lock) is retried with exponential backoff. Any other failure is returned
// immediately.
package cachestore
