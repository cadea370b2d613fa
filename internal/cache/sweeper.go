package cache

import (
	"log"

	"github.com/robfig/cron/v3"
)

// Cleaner is anything the sweeper can purge
type Cleaner interface {
	Cleanup() int
}

// Sweeper periodically purges expired entries from a set of caches so their
// memory stays bounded independent of access patterns.
type Sweeper struct {
	cron   *cron.Cron
	caches []Cleaner
}

// NewSweeper creates a sweeper over the given caches. schedule is a cron
// spec, e.g. "@every 60s".
func NewSweeper(schedule string, caches ...Cleaner) (*Sweeper, error) {
	s := &Sweeper{
		cron:   cron.New(),
		caches: caches,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the periodic sweep
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the periodic sweep, waiting for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	total := 0
	for _, c := range s.caches {
		total += c.Cleanup()
	}
	if total > 0 {
		log.Printf("Cache sweep removed %d expired entries", total)
	}
}
