// Package config is the daemon's schema-driven configuration runtime and
// atomic INI storage layer — spec.md §4.8/§4.9.
package config

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/onvifcam/onvifd/internal/apperr"
	"github.com/onvifcam/onvifd/internal/logging"
)

const opConfig = "config"

// Runtime is the Config Runtime of spec.md §4.8: it owns the canonical
// Snapshot, validates typed mutations against the Schema, applies
// defaults, and serialises a generation counter. Readers obtain the
// current Snapshot via an atomically-swapped pointer — no lock is taken on
// the read path, and reads never allocate beyond the returned pointer.
type Runtime struct {
	schema *Schema
	logger *logging.Logger

	writerMu sync.Mutex // serialises Set*/ApplyDefaults/mutating user ops
	current  atomic.Pointer[Snapshot]
	gen      atomic.Uint32

	onUpdate []func(*Snapshot)
	persist  PersistQueue
}

// PersistQueue is the narrow surface the Runtime needs from the
// persistence layer: enqueue a mutated (section,key,value) for atomic
// flush-to-disk, per spec.md §3 "Persistence Queue". Storage implements
// this by writing the whole non-default snapshot; a dedicated queue type
// is unnecessary complexity for a single-writer daemon. NewRuntime defaults
// to NoopPersistQueue; cmd/onvifd installs Storage via SetPersistQueue, so
// each mutation calls straight through to Storage.Save.
type PersistQueue interface {
	Enqueue(s *Snapshot) error
}

// NoopPersistQueue discards persistence requests; used in tests that don't
// care about on-disk state.
type NoopPersistQueue struct{}

func (NoopPersistQueue) Enqueue(*Snapshot) error { return nil }

// NewRuntime builds the schema table and installs a snapshot composed
// entirely of schema defaults, generation 0, per spec.md §4.8 "init".
func NewRuntime(logger *logging.Logger, persist PersistQueue) *Runtime {
	if logger == nil {
		logger = logging.GetLogger("config")
	}
	if persist == nil {
		persist = NoopPersistQueue{}
	}
	r := &Runtime{schema: defaultSchema(), logger: logger, persist: persist}
	snap := &Snapshot{Users: map[string]UserRecord{}}
	for _, e := range r.schema.Entries() {
		_ = e.Set(snap, e.DefaultLit) // schema defaults are known-valid by construction
	}
	r.current.Store(snap)
	return r
}

// SetPersistQueue rebinds the PersistQueue mutations are enqueued to. Used
// at startup once Storage has been constructed around this Runtime, since
// Storage itself requires an already-built Runtime to load into.
func (r *Runtime) SetPersistQueue(p PersistQueue) {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()
	r.persist = p
}

// Snapshot returns the current, read-only Snapshot. The returned pointer is
// stable until the next successful mutation installs a new one — existing
// holders are never mutated in place.
func (r *Runtime) Snapshot() *Snapshot {
	return r.current.Load()
}

// Generation returns the current generation counter.
func (r *Runtime) Generation() uint32 {
	return r.gen.Load()
}

// OnUpdate registers a callback invoked (from within the writer's critical
// section, after the new snapshot is installed) on every successful
// mutation or ApplyDefaults call, for consumers that must react to a
// changed configuration.
func (r *Runtime) OnUpdate(fn func(*Snapshot)) {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()
	r.onUpdate = append(r.onUpdate, fn)
}

// ApplyDefaults resets every field to its schema default and bumps the
// generation. Idempotent: applying twice in a row yields the same snapshot
// (ignoring the generation counter itself), per spec.md §8 "Idempotence of
// defaults".
func (r *Runtime) ApplyDefaults() {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	prev := r.current.Load()
	snap := &Snapshot{Users: map[string]UserRecord{}}
	for k, v := range prev.Users {
		snap.Users[k] = v // user accounts survive a defaults reset
	}
	for _, e := range r.schema.Entries() {
		_ = e.Set(snap, e.DefaultLit)
	}
	r.installLocked(snap)
}

// GetString, GetInt, GetFloat, GetBool read a single field out of the
// current snapshot by (section,key). They never take a lock — they read
// straight from the atomically-published Snapshot. Every field is read
// through its schema entry's string form: non-string fields are formatted
// with fmt.Sprintf, and GetInt/GetFloat/GetBool parse that string back, so
// these reads allocate on the heap.
func (r *Runtime) GetString(section, key string) (string, error) {
	e, ok := r.schema.lookup(section, key)
	if !ok {
		return "", apperr.New(apperr.KindNotFound, opConfig, fmt.Sprintf("unknown key %s.%s", section, key))
	}
	return e.Get(r.current.Load()), nil
}

func (r *Runtime) GetInt(section, key string) (int32, error) {
	v, err := r.GetString(section, key)
	if err != nil {
		return 0, err
	}
	n, perr := parseInt32(v)
	if perr != nil {
		return 0, apperr.Wrap(apperr.KindInternal, opConfig, "stored value is not an int32", perr)
	}
	return n, nil
}

func (r *Runtime) GetFloat(section, key string) (float64, error) {
	v, err := r.GetString(section, key)
	if err != nil {
		return 0, err
	}
	n, perr := parseFloat(v)
	if perr != nil {
		return 0, apperr.Wrap(apperr.KindInternal, opConfig, "stored value is not a float", perr)
	}
	return n, nil
}

func (r *Runtime) GetBool(section, key string) (bool, error) {
	v, err := r.GetString(section, key)
	if err != nil {
		return false, err
	}
	b, perr := parseBool(v)
	if perr != nil {
		return false, apperr.Wrap(apperr.KindInternal, opConfig, "stored value is not a bool", perr)
	}
	return b, nil
}

// SetString, SetInt, SetFloat, SetBool validate the new value against the
// schema bounds; on success they install a new Snapshot, bump the
// generation, and enqueue a persistence write. On failure the snapshot is
// left untouched — spec.md §7 "atomic-fail".
func (r *Runtime) SetString(section, key, value string) error {
	return r.set(section, key, value)
}

func (r *Runtime) SetInt(section, key string, value int32) error {
	return r.set(section, key, fmt.Sprintf("%d", value))
}

func (r *Runtime) SetFloat(section, key string, value float64) error {
	return r.set(section, key, fmt.Sprintf("%g", value))
}

func (r *Runtime) SetBool(section, key string, value bool) error {
	return r.set(section, key, fmt.Sprintf("%t", value))
}

func (r *Runtime) set(section, key, value string) error {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	e, ok := r.schema.lookup(section, key)
	if !ok {
		return apperr.New(apperr.KindNotFound, opConfig, fmt.Sprintf("unknown key %s.%s", section, key))
	}

	next := r.current.Load().clone()
	if err := e.Set(next, value); err != nil {
		return apperr.Wrap(apperr.KindInvalid, opConfig, fmt.Sprintf("%s.%s: %s", section, key, err.Error()), err)
	}

	r.installLocked(next)
	if err := r.persist.Enqueue(next); err != nil {
		r.logger.WithError(err).Warn("persistence enqueue failed; in-memory value retained")
	}
	return nil
}

// installLocked publishes next as the current snapshot, bumps the
// generation, and fires registered callbacks. Caller must hold writerMu.
func (r *Runtime) installLocked(next *Snapshot) {
	r.current.Store(next)
	r.gen.Add(1)
	for _, fn := range r.onUpdate {
		fn(next)
	}
}

// RegisterUser hashes password and adds (or replaces) a user account.
// Passwords are never retained in the clear — spec.md §4.6/§4.8.
func (r *Runtime) RegisterUser(name, password, level string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.New(apperr.KindInvalid, opConfig, "user name must not be empty")
	}
	if level != "admin" && level != "operator" && level != "viewer" {
		return apperr.New(apperr.KindInvalid, opConfig, "level must be admin, operator or viewer")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, opConfig, "failed to hash password", err)
	}

	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	next := r.current.Load().clone()
	ha1 := computeHA1(name, next.Onvif.Realm, password)
	next.Users[name] = UserRecord{Name: name, HashedPassword: hash, HA1: ha1, Level: level}
	r.installLocked(next)
	if err := r.persist.Enqueue(next); err != nil {
		r.logger.WithError(err).Warn("persistence enqueue failed for user registration")
	}
	return nil
}

// RemoveUser deletes a user account, if present.
func (r *Runtime) RemoveUser(name string) error {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	next := r.current.Load().clone()
	if _, ok := next.Users[name]; !ok {
		return apperr.New(apperr.KindNotFound, opConfig, fmt.Sprintf("no such user %q", name))
	}
	delete(next.Users, name)
	r.installLocked(next)
	if err := r.persist.Enqueue(next); err != nil {
		r.logger.WithError(err).Warn("persistence enqueue failed for user removal")
	}
	return nil
}

// VerifyUser checks password against the stored hash for name, returning
// the user's access level on success.
func (r *Runtime) VerifyUser(name, password string) (level string, err error) {
	snap := r.current.Load()
	u, ok := snap.Users[name]
	if !ok {
		return "", apperr.New(apperr.KindAuth, opConfig, "invalid credentials")
	}
	ok2, verr := verifyPassword(u.HashedPassword, password)
	if verr != nil {
		return "", apperr.Wrap(apperr.KindInternal, opConfig, "failed to verify password", verr)
	}
	if !ok2 {
		return "", apperr.New(apperr.KindAuth, opConfig, "invalid credentials")
	}
	return u.Level, nil
}

// restoreUser installs a UserRecord whose password digests were already
// computed by a previous RegisterUser call and are being read back from
// disk — unlike RegisterUser it never sees (or hashes) a plaintext
// password. Used only by Storage.Load.
func (r *Runtime) restoreUser(name, hashedPassword, ha1, level string) error {
	if name == "" {
		return apperr.New(apperr.KindInvalid, opConfig, "user name must not be empty")
	}
	if level != "admin" && level != "operator" && level != "viewer" {
		return apperr.New(apperr.KindInvalid, opConfig, fmt.Sprintf("user %q: level must be admin, operator or viewer", name))
	}

	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	next := r.current.Load().clone()
	next.Users[name] = UserRecord{Name: name, HashedPassword: hashedPassword, HA1: ha1, Level: level}
	r.installLocked(next)
	return nil
}

// UserExists reports whether name has a registered account.
func (r *Runtime) UserExists(name string) bool {
	_, ok := r.current.Load().Users[name]
	return ok
}

// LookupHA1 returns the stored HA1 = MD5(name:realm:password) digest for
// HTTP Digest verification (internal/auth), and whether the user exists.
func (r *Runtime) LookupHA1(name string) (ha1 string, ok bool) {
	u, ok := r.current.Load().Users[name]
	if !ok {
		return "", false
	}
	return u.HA1, true
}
