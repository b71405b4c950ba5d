// Package vmotion implements the process-wide vMotion Broker (§3, §4.9): a
// mapping from (sequence, secret) to the source VMware-extension option
// handler holding a pending migration.
package vmotion

import (
	"crypto/rand"
	"fmt"
	"sync"
)

// SecretLen is the number of cryptographically random bytes generated per
// BEGIN, per §3.
const SecretLen = 8

// Broker holds a non-owning reference to the source handler of each
// in-flight migration, keyed by sequence||secret. Entries are removed on
// COMPLETE, ABORT, or ABANDON (§3); a stale entry whose owning connection
// tore down without removing it would wedge that key forever, so
// Broker.RemoveBySource lets connection teardown sweep any entry it still
// owns even if it never reached ABORT/COMPLETE.
type Broker struct {
	mu      sync.Mutex
	entries map[string]interface{}
}

// NewBroker builds an empty Broker.
func NewBroker() *Broker {
	return &Broker{entries: make(map[string]interface{})}
}

// Key formats the broker key from a sequence and secret: the sequence, a NUL
// separator, then the secret.
func Key(sequence, secret []byte) string {
	return string(sequence) + "\x00" + string(secret)
}

// GenerateSecret produces SecretLen cryptographically random bytes for a
// new BEGIN.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, SecretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("vmotion: generate secret: %w", err)
	}
	return secret, nil
}

// Begin inserts key -> source. If key is already present (a source
// reusing a sequence number without aborting first) it is overwritten, the
// caller is expected to have already abandoned any prior pending migration
// for that connection before calling Begin (§4.8 VMOTION_BEGIN).
func (b *Broker) Begin(key string, source interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = source
}

// Lookup returns the source registered under key, if any.
func (b *Broker) Lookup(key string) (interface{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.entries[key]
	return v, ok
}

// Remove deletes key unconditionally.
func (b *Broker) Remove(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

// RemoveBySource deletes every entry whose stored source equals source
// (by interface equality), used by connection teardown to sweep any
// migration the closing connection still owns.
func (b *Broker) RemoveBySource(source interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range b.entries {
		if v == source {
			delete(b.entries, k)
		}
	}
}

// Len reports the number of pending migrations, for tests and stats.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
