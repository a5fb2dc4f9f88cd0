// Package cache holds keyed, independently refreshed data tiers. A tier never
// decides on its own to fetch; callers ask Decide on each scheduler tick and run
// Fetch for the keys that need it.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Never disables staleness for a tier.
const Never time.Duration = -1

type Policy struct {
	// StaleAfter is how long a value is served before Decide asks for a refetch.
	// Never means the value stays fresh; zero means it is always stale.
	StaleAfter time.Duration
	// Interval refetches on a fixed cadence, measured from the last attempt. When
	// set it replaces StaleAfter as the refetch trigger.
	Interval time.Duration
	// Retries is the number of extra attempts after a failed fetch.
	Retries int
}

type Action int

const (
	Reuse Action = iota
	Refetch
)

type Reason string

const (
	ReasonFresh       Reason = "fresh"
	ReasonInFlight    Reason = "in-flight"
	ReasonMissing     Reason = "missing"
	ReasonInvalidated Reason = "invalidated"
	ReasonStale       Reason = "stale"
	ReasonInterval    Reason = "interval"
)

type Decision struct {
	Action Action
	Reason Reason
}

// Meta describes an entry without exposing its value.
type Meta struct {
	HasValue    bool
	UpdatedAt   time.Time
	AttemptedAt time.Time
	Fetching    bool
	Invalidated bool
	Err         error
}

type entry[T any] struct {
	value         T
	hasValue      bool
	updatedAt     time.Time
	attemptedAt   time.Time
	fetching      int
	invalidated   bool
	invalidations uint64
	err           error
}

func (e entry[T]) meta() Meta {
	return Meta{
		HasValue:    e.hasValue,
		UpdatedAt:   e.updatedAt,
		AttemptedAt: e.attemptedAt,
		Fetching:    e.fetching > 0,
		Invalidated: e.invalidated,
		Err:         e.err,
	}
}

// Tier is a keyed cache with one staleness policy. Entries are values replaced
// under the lock, never mutated while a reader holds them.
type Tier[T any] struct {
	name   string
	policy Policy
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]entry[T]
	group   singleflight.Group
}

func NewTier[T any](name string, policy Policy, now func() time.Time) *Tier[T] {
	if now == nil {
		now = time.Now
	}
	return &Tier[T]{
		name:    name,
		policy:  policy,
		now:     now,
		entries: make(map[string]entry[T]),
	}
}

func (t *Tier[T]) Name() string { return t.name }

func (t *Tier[T]) Policy() Policy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.policy
}

// SetPolicy swaps the policy; existing entries are judged by it from now on.
func (t *Tier[T]) SetPolicy(p Policy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policy = p
}

// Decide is the pure reuse/refetch rule for key at now.
func (t *Tier[T]) Decide(key string, now time.Time) Decision {
	t.mu.Lock()
	e, ok := t.entries[key]
	p := t.policy
	t.mu.Unlock()
	return decide(p, e, ok, now)
}

func decide[T any](p Policy, e entry[T], ok bool, now time.Time) Decision {
	switch {
	case ok && e.fetching > 0:
		return Decision{Reuse, ReasonInFlight}
	case !ok || (!e.hasValue && e.attemptedAt.IsZero()):
		return Decision{Refetch, ReasonMissing}
	case e.invalidated:
		return Decision{Refetch, ReasonInvalidated}
	}

	if p.Interval > 0 {
		if now.Sub(e.attemptedAt) >= p.Interval {
			return Decision{Refetch, ReasonInterval}
		}
		return Decision{Reuse, ReasonFresh}
	}

	// failures age from the attempt so a broken key is not retried every tick
	since := e.updatedAt
	if e.attemptedAt.After(since) {
		since = e.attemptedAt
	}
	if p.StaleAfter >= 0 && now.Sub(since) >= p.StaleAfter {
		return Decision{Refetch, ReasonStale}
	}
	return Decision{Reuse, ReasonFresh}
}

// Stale reports whether the value for key is older than the tier's StaleAfter.
func (t *Tier[T]) Stale(key string, now time.Time) bool {
	t.mu.Lock()
	e, ok := t.entries[key]
	p := t.policy
	t.mu.Unlock()
	if !ok || !e.hasValue {
		return true
	}
	return p.StaleAfter >= 0 && now.Sub(e.updatedAt) >= p.StaleAfter
}

// Get returns the cached value even if stale; ok is false until a fetch succeeded.
func (t *Tier[T]) Get(key string) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[key]
	return e.value, e.hasValue
}

func (t *Tier[T]) Peek(key string) Meta {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[key].meta()
}

// Fetch runs fn for key, collapsing concurrent callers for the same key into one
// call. Failed attempts are retried up to Policy.Retries times. On failure the
// previous value stays in place.
func (t *Tier[T]) Fetch(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	v, err, _ := t.group.Do(key, func() (any, error) {
		gen, retries := t.begin(key)

		var (
			val T
			err error
		)
		for attempt := 0; attempt <= retries; attempt++ {
			if ctx.Err() != nil {
				err = ctx.Err()
				break
			}
			val, err = fn(ctx)
			if err == nil {
				break
			}
		}

		t.finish(key, gen, val, err)
		if err != nil {
			return val, fmt.Errorf("%s %s: %w", t.name, key, err)
		}
		return val, nil
	})
	val, _ := v.(T)
	return val, err
}

// begin marks key as in flight and returns its invalidation generation.
func (t *Tier[T]) begin(key string) (uint64, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[key]
	e.fetching++
	e.attemptedAt = t.now()
	t.entries[key] = e
	return e.invalidations, t.policy.Retries
}

func (t *Tier[T]) finish(key string, gen uint64, val T, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		// torn down while in flight
		return
	}
	if e.fetching > 0 {
		e.fetching--
	}
	// an invalidation that arrived mid-flight still forces the next refetch
	if e.invalidations == gen {
		e.invalidated = false
	}
	if err != nil {
		e.err = err
		t.entries[key] = e
		return
	}
	e.value = val
	e.hasValue = true
	e.updatedAt = t.now()
	e.err = nil
	t.entries[key] = e
}

// Set replaces the value for key as if a fetch had just succeeded.
func (t *Tier[T]) Set(key string, val T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	e := t.entries[key]
	e.value = val
	e.hasValue = true
	e.updatedAt = now
	if e.attemptedAt.IsZero() {
		e.attemptedAt = now
	}
	e.err = nil
	t.entries[key] = e
}

// Update applies fn to a copy of the current value and stores the result. It
// reports false and does nothing when key has no value.
func (t *Tier[T]) Update(key string, fn func(T) T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok || !e.hasValue {
		return false
	}
	e.value = fn(e.value)
	t.entries[key] = e
	return true
}

func (t *Tier[T]) Invalidate(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return
	}
	e.invalidated = true
	e.invalidations++
	t.entries[key] = e
}

func (t *Tier[T]) InvalidateAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.entries {
		e.invalidated = true
		e.invalidations++
		t.entries[k] = e
	}
}

// Retain drops every entry whose key is not in keep and returns how many went.
func (t *Tier[T]) Retain(keep []string) int {
	set := make(map[string]bool, len(keep))
	for _, k := range keep {
		set[k] = true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for k := range t.entries {
		if !set[k] {
			delete(t.entries, k)
			dropped++
		}
	}
	return dropped
}

// Track creates an empty entry so that Invalidate and Retain see key before
// its first fetch completes.
func (t *Tier[T]) Track(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; !ok {
		t.entries[key] = entry[T]{}
	}
}

func (t *Tier[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
