// services/scheduler.go
package services

import (
	"log"
	"time"

	"arena-tournament-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartTournamentScheduler moves tournaments through their time-driven
// transitions: registration opens at RegistrationOpensAt and closes at
// RegistrationClosesAt. Host actions (live, completed, cancelled) stay manual.
func (s *TournamentService) StartTournamentScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: open and close registrations whose window has arrived
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()

			var toOpen []models.Tournament
			err := s.DB.Where("status = ? AND registration_opens_at <= ?",
				models.TournamentStatusUpcoming, now).
				Find(&toOpen).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}
			for _, t := range toOpen {
				if err := s.DB.Model(&t).Update("status", models.TournamentStatusRegistrationOpen).Error; err != nil {
					log.Printf("[Scheduler] Failed to open registration for %s: %v", t.ID, err)
				} else {
					log.Printf("✅ Registration opened: %s", t.Name)
				}
			}

			var toClose []models.Tournament
			err = s.DB.Where("status = ? AND registration_closes_at <= ?",
				models.TournamentStatusRegistrationOpen, now).
				Find(&toClose).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}
			for _, t := range toClose {
				if err := s.DB.Model(&t).Update("status", models.TournamentStatusRegistrationClosed).Error; err != nil {
					log.Printf("[Scheduler] Failed to close registration for %s: %v", t.ID, err)
				} else {
					log.Printf("✅ Registration closed: %s", t.Name)
				}
			}
		}),
	)
}
