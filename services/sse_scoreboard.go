package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ctf-scoreboard-system/models"

	"github.com/gofiber/fiber/v2"
)

// StreamScoreboardSSE streams unlock events to the client as they land,
// so scoreboard UIs update without polling.
func (s *ScoreboardService) StreamScoreboardSSE(c *fiber.Ctx) error {
	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	// Use fasthttp stream writer (THIS replaces Flush)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		// Cursor on the unlock id — monotonic, no clock skew issues
		var lastID uint64
		var latest models.AchievementUnlock
		if err := s.DB.Order("id DESC").First(&latest).Error; err == nil {
			lastID = latest.ID
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var unlocks []models.AchievementUnlock
				err := s.DB.
					Where("id > ?", lastID).
					Order("id ASC").
					Find(&unlocks).Error
				if err != nil {
					log.Printf("SSE query error: %v", err)
					continue
				}

				if len(unlocks) == 0 {
					continue
				}
				lastID = unlocks[len(unlocks)-1].ID

				for _, u := range unlocks {
					payload, _ := json.Marshal(u)
					fmt.Fprintf(w,
						"event: unlock\ndata: %s\n\n",
						payload,
					)
				}

				// This is the REAL "flush"
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
