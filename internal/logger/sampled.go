package logger

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Sampled throttles high-frequency log categories such as per-frame decode
// traces. Each category gets its own token bucket; suppressed lines are
// counted and reported on the next line that gets through.
type Sampled struct {
	base  Logger
	every time.Duration
	burst int

	mu         sync.Mutex
	categories map[string]*category
}

type category struct {
	limiter    *rate.Limiter
	suppressed int64
}

// NewSampled allows burst lines per category, then one line per every.
func NewSampled(base Logger, every time.Duration, burst int) *Sampled {
	if burst < 1 {
		burst = 1
	}
	return &Sampled{
		base:       base,
		every:      every,
		burst:      burst,
		categories: make(map[string]*category),
	}
}

// Log writes msg under category unless the category is over its budget.
// It reports whether the line was written.
func (s *Sampled) Log(level logrus.Level, cat, msg string, fields Fields) bool {
	s.mu.Lock()
	c, ok := s.categories[cat]
	if !ok {
		c = &category{limiter: rate.NewLimiter(rate.Every(s.every), s.burst)}
		s.categories[cat] = c
	}
	if !c.limiter.Allow() {
		c.suppressed++
		s.mu.Unlock()
		return false
	}
	suppressed := c.suppressed
	c.suppressed = 0
	s.mu.Unlock()

	l := s.base.WithField("category", cat)
	if len(fields) > 0 {
		l = l.WithFields(fields)
	}
	if suppressed > 0 {
		l = l.WithField("suppressed", suppressed)
	}
	l.Log(level, msg)
	return true
}

func (s *Sampled) Debug(cat, msg string, fields Fields) bool {
	return s.Log(logrus.DebugLevel, cat, msg, fields)
}

func (s *Sampled) Warn(cat, msg string, fields Fields) bool {
	return s.Log(logrus.WarnLevel, cat, msg, fields)
}

// Suppressed returns the number of lines dropped for cat since it last logged.
func (s *Sampled) Suppressed(cat string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.categories[cat]; ok {
		return c.suppressed
	}
	return 0
}
