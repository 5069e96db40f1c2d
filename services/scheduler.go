// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSnapshotScheduler persists the leaderboard as a snapshot batch on a
// fixed interval. The live board stays query-time fresh; snapshots feed the
// export worker and the /leaderboard/snapshots/latest endpoint.
func (s *ScoreboardService) StartSnapshotScheduler(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			batchID, err := s.TakeSnapshot()
			if err != nil {
				log.Printf("[Snapshot] Failed to take leaderboard snapshot: %v", err)
				return
			}
			if batchID == "" {
				return // empty board, nothing to persist
			}
			log.Printf("✅ Leaderboard snapshot persisted: batch %s", batchID)
		}),
	)
}
