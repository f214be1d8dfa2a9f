package registry

import (
	"context"
	"os"
	"time"

	"github.com/fishannotator/reel/internal/logger"
	"github.com/fishannotator/reel/internal/metrics"
	"github.com/fishannotator/reel/internal/player"
)

// SnapshotSource is the part of the player the reporter polls.
type SnapshotSource interface {
	Snapshot() player.Snapshot
}

// Reporter keeps the registry entry of the local player fresh: it puts the
// current session on every beat, removes the previous one when a new video
// is loaded, and removes it when the player goes Idle or the reporter stops.
type Reporter struct {
	registry    Registry
	source      SnapshotSource
	workstation string
	interval    time.Duration
	log         logger.Logger

	current string
}

// hostname is swapped in tests.
var hostname = os.Hostname

// unknownWorkstation names sessions when the host name cannot be read.
const unknownWorkstation = "unknown"

func localWorkstation(log logger.Logger) string {
	name, err := hostname()
	if err != nil || name == "" {
		log.WithError(err).Debug("Cannot read host name, advertising sessions as unknown")
		return unknownWorkstation
	}
	return name
}

func NewReporter(reg Registry, source SnapshotSource, workstation string, interval time.Duration, log logger.Logger) *Reporter {
	if log == nil {
		log = logger.NullLogger{}
	}
	if workstation == "" {
		workstation = localWorkstation(log)
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reporter{
		registry:    reg,
		source:      source,
		workstation: workstation,
		interval:    interval,
		log:         log.WithField("component", "registry_reporter"),
	}
}

// Run beats until ctx is done, then withdraws the advertised session.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Beat(ctx)
	for {
		select {
		case <-ticker.C:
			r.Beat(ctx)
		case <-ctx.Done():
			r.withdraw()
			return
		}
	}
}

// Beat publishes the current snapshot once.
func (r *Reporter) Beat(ctx context.Context) error {
	s := FromSnapshot(r.source.Snapshot(), r.workstation)

	if r.current != "" && (s == nil || s.ID != r.current) {
		if err := r.registry.Remove(ctx, r.current); err != nil {
			r.log.WithError(err).WithField("session_id", r.current).Debug("Stale session already gone")
		}
		r.current = ""
	}
	if s == nil {
		return nil
	}

	err := r.registry.Put(ctx, s)
	metrics.IncHeartbeat(err)
	if err != nil {
		r.log.WithError(err).WithField("session_id", s.ID).Warn("Session heartbeat failed")
		return err
	}
	r.current = s.ID
	return nil
}

func (r *Reporter) withdraw() {
	if r.current == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.registry.Remove(ctx, r.current); err != nil {
		r.log.WithError(err).Warn("Failed to withdraw session")
	}
	r.current = ""
}
