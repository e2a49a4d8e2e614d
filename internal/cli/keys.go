package cli

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cachescope/internal/cachestore"
)

// listKeys returns keys whose NFC form starts with the NFC form of prefix,
// in store order. A limit of zero means no limit.
func listKeys(ctx context.Context, h cachestore.Handle, prefix string, limit int) ([]string, error) {
	p := norm.NFC.String(prefix)
	keys := []string{}
	for k, err := range h.Keys(ctx) {
		if err != nil {
			return keys, err
		}
		if p != "" && !strings.HasPrefix(norm.NFC.String(k), p) {
			continue
		}
		keys = append(keys, k)
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, nil
}

// countKeys counts every key in the store.
func countKeys(ctx context.Context, h cachestore.Handle) (int, error) {
	n := 0
	for _, err := range h.Keys(ctx) {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// lookupKey resolves a key typed by the user. An exact match wins;
// otherwise the first key with the same NFC form is used.
func lookupKey(ctx context.Context, h cachestore.Handle, key string) ([]byte, string, error) {
	v, err := h.Get(ctx, key)
	if err == nil {
		return v, key, nil
	}
	if !errors.Is(err, cachestore.ErrNotFound) {
		return nil, key, err
	}

	want := norm.NFC.String(key)
	for k, kerr := range h.Keys(ctx) {
		if kerr != nil {
			return nil, key, kerr
		}
		if k != key && norm.NFC.String(k) == want {
			v, err := h.Get(ctx, k)
			return v, k, err
		}
	}
	return nil, key, cachestore.ErrNotFound
}

func plural(n int, word string) string {
	return pluralForm(n, word, word+"s")
}

func pluralForm(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
