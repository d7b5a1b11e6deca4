package reservation

import (
    "fmt"
    "sort"
    "sync"
)

// keyedMutex serializes mutations per (chargingStationID, connectorID)
// pair so concurrent writes against the same connector can never both
// pass the conflict check, while writes against different connectors
// proceed in parallel.  Entries are kept for the life of the process;
// the key space is bounded by the number of connectors in the fleet.
type keyedMutex struct {
    mu    sync.Mutex
    locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
    return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lockKey builds the serialization key for one connector.
func lockKey(stationID string, connectorID uint32) string {
    return fmt.Sprintf("%s#%d", stationID, connectorID)
}

func (k *keyedMutex) get(key string) *sync.Mutex {
    k.mu.Lock()
    defer k.mu.Unlock()
    m, ok := k.locks[key]
    if !ok {
        m = &sync.Mutex{}
        k.locks[key] = m
    }
    return m
}

// Lock acquires the mutex for a single connector and returns the
// unlock function.
func (k *keyedMutex) Lock(key string) func() {
    m := k.get(key)
    m.Lock()
    return m.Unlock
}

// LockPair acquires the mutexes for two connectors in a deterministic
// order so that an update moving a reservation between connectors can
// never deadlock against another mover going the other way.  Both keys
// being equal degenerates to a single lock.
func (k *keyedMutex) LockPair(a, b string) func() {
    if a == b {
        return k.Lock(a)
    }
    keys := []string{a, b}
    sort.Strings(keys)
    first := k.get(keys[0])
    second := k.get(keys[1])
    first.Lock()
    second.Lock()
    return func() {
        second.Unlock()
        first.Unlock()
    }
}
