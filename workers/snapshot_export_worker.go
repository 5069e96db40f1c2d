package workers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"ctf-scoreboard-system/models"
	"ctf-scoreboard-system/utils"

	"gorm.io/gorm"
)

// SnapshotExporter ships finished leaderboard snapshot batches to R2 so the
// public site can serve the board from the CDN without hitting this service.
type SnapshotExporter struct {
	DB        *gorm.DB
	ObjectKey string // e.g., "leaderboard/latest.json"
}

func NewSnapshotExporter(db *gorm.DB) *SnapshotExporter {
	return &SnapshotExporter{
		DB:        db,
		ObjectKey: "leaderboard/latest.json",
	}
}

// latestBatch returns the newest snapshot batch, best rank first.
func (e *SnapshotExporter) latestBatch() (string, []models.LeaderboardSnapshot, error) {
	var latest models.LeaderboardSnapshot
	if err := e.DB.Order("taken_at DESC").First(&latest).Error; err != nil {
		return "", nil, err
	}

	var rows []models.LeaderboardSnapshot
	if err := e.DB.Where("batch_id = ?", latest.BatchID).
		Order("rank ASC, username ASC").
		Find(&rows).Error; err != nil {
		return "", nil, err
	}
	return latest.BatchID, rows, nil
}

// PollSnapshots uploads each new snapshot batch exactly once.
func PollSnapshots(ctx context.Context, exporter *SnapshotExporter, pollInterval time.Duration) {
	log.Println("Starting snapshot export polling (DB → R2)...")
	var lastExportedBatch string

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Snapshot export polling stopped.")
			return
		case <-ticker.C:
			batchID, rows, err := exporter.latestBatch()
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					continue // no snapshots yet
				}
				log.Printf("❌ Error fetching latest snapshot batch: %v", err)
				continue
			}
			if batchID == lastExportedBatch {
				continue // already shipped
			}

			payload, err := json.Marshal(rows)
			if err != nil {
				log.Printf("❌ Failed to marshal snapshot batch %s: %v", batchID, err)
				continue
			}

			url, err := utils.UploadJSONToR2(payload, exporter.ObjectKey)
			if err != nil {
				// Do NOT advance lastExportedBatch on failure — retry same batch next tick
				log.Printf("❌ Failed to upload snapshot batch %s to R2: %v", batchID, err)
				continue
			}

			lastExportedBatch = batchID
			log.Printf("✅ Exported snapshot batch %s (%d rows) → %s", batchID, len(rows), url)
		}
	}
}
