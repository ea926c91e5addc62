// Package password hashes and verifies passwords with bcrypt on a bounded
// pool of goroutines, so CPU-heavy hashing cannot pile up without limit and
// callers can give up when their request context ends.
package password

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used for new hashes.
const DefaultCost = 10

// ErrMismatch is returned by Compare when the password does not match the hash.
var ErrMismatch = errors.New("password does not match")

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Compare(ctx context.Context, hash, password string) error
}

type Config struct {
	// Cost is the bcrypt cost; values below DefaultCost are raised to it
	// unless AllowLowCost is set (tests only).
	Cost         int
	AllowLowCost bool
	// Workers bounds how many hashes run at once.
	Workers int
}

type bcryptHasher struct {
	cost  int
	sem   chan struct{}
	dummy []byte
}

func NewBcryptHasher(cfg Config) (Hasher, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Cost == 0 || (cfg.Cost < DefaultCost && !cfg.AllowLowCost) {
		cfg.Cost = DefaultCost
	}
	if cfg.Cost < bcrypt.MinCost || cfg.Cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cfg.Cost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("timing-equaliser"), cfg.Cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &bcryptHasher{
		cost:  cfg.Cost,
		sem:   make(chan struct{}, cfg.Workers),
		dummy: dummy,
	}, nil
}

func (h *bcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	var hash []byte
	err := h.run(ctx, func() error {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), h.cost)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Compare checks password against hash. An empty hash is compared against a
// throwaway hash so that unknown accounts cost the same time as known ones.
func (h *bcryptHasher) Compare(ctx context.Context, hash, password string) error {
	target := []byte(hash)
	if hash == "" {
		target = h.dummy
	}
	err := h.run(ctx, func() error {
		return bcrypt.CompareHashAndPassword(target, []byte(password))
	})
	switch {
	case err == nil && hash == "":
		return ErrMismatch
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}

// run waits for a free worker slot, then executes fn on its own goroutine.
// The caller stops waiting when ctx ends; fn still finishes and frees its slot.
func (h *bcryptHasher) run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-h.sem }()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
