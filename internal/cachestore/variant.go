package cachestore

import "fmt"

// Variant identifies one of the four store implementations.
type Variant int

const (
	// PlainDirectory is an unencrypted Badger directory.
	PlainDirectory Variant = iota + 1
	// EncryptedDirectory is a Badger directory with block encryption.
	EncryptedDirectory
	// PlainIndexed is an unencrypted single-file SQLite cache.
	PlainIndexed
	// EncryptedIndexed is a single-file SQLite cache with sealed values.
	EncryptedIndexed
)

// Variants lists every variant in declaration order.
var Variants = []Variant{PlainDirectory, EncryptedDirectory, PlainIndexed, EncryptedIndexed}

// Select maps the two selection flags to a variant.
// Every combination is valid and maps to a distinct variant.
func Select(encrypted, indexed bool) Variant {
	switch {
	case indexed && encrypted:
		return EncryptedIndexed
	case indexed:
		return PlainIndexed
	case encrypted:
		return EncryptedDirectory
	default:
		return PlainDirectory
	}
}

// Encrypted reports whether v requires a passphrase.
func (v Variant) Encrypted() bool {
	return v == EncryptedDirectory || v == EncryptedIndexed
}

// Indexed reports whether v is a single-file store.
func (v Variant) Indexed() bool {
	return v == PlainIndexed || v == EncryptedIndexed
}

func (v Variant) String() string {
	switch v {
	case PlainDirectory:
		return "plain-directory"
	case EncryptedDirectory:
		return "encrypted-directory"
	case PlainIndexed:
		return "plain-indexed"
	case EncryptedIndexed:
		return "encrypted-indexed"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}
