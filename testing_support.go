package bscore

import "syscall"

// WithFailingSpawnAt returns a copy of cfg whose worker startup fails at
// the given zero-based index, simulating the only failure mode
// pthread_create has that goroutine creation in Go cannot reproduce. See
// DESIGN.md's Open Question on this for why the injection point lives
// here rather than as a hidden global.
func WithFailingSpawnAt(cfg PoolConfig, failAt int) PoolConfig {
	cfg.spawn = func(p *Pool, idx int) error {
		if idx == failAt {
			return NewErrorWithErrno("Pool.Open", ErrCodeNoMemory, syscall.ENOMEM)
		}
		return defaultSpawn(p, idx)
	}
	return cfg
}
