package main

import (
	"context"
	"os"
	"time"

	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/lifecycle"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/notify"
	"github.com/oggyb/matchmaker/internal/repository"
	"github.com/oggyb/matchmaker/internal/status"
)

// demoSuggestions is how many pairs get a suggestion after users are seeded.
const demoSuggestions = 4

func main() {
	// Load configuration
	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var matchmaker db.User
	if err := database.WithContext(ctx).Where("role = ?", db.RoleMatchmaker).Order("id").First(&matchmaker).Error; err != nil {
		log.Error("no matchmaker seeded", "err", err)
		os.Exit(1)
	}
	var candidates []db.User
	if err := database.WithContext(ctx).
		Where("role = ? AND availability_status = ?", db.RoleCandidate, db.AvailabilityAvailable).
		Order("id").Limit(demoSuggestions * 2).Find(&candidates).Error; err != nil {
		log.Error("failed to load candidates", "err", err)
		os.Exit(1)
	}

	// Suggestions go through the engine so history and stamps are real.
	engine := lifecycle.NewEngine(
		repository.NewSuggestionRepository(database),
		repository.NewPartyRepository(database),
		notify.NewLogNotifier(logger.Named("notify")),
		lifecycle.WithSecondPartyWindow(cfg.Lifecycle.SecondPartyWindow),
	)
	mm := lifecycle.Actor{Role: lifecycle.RoleMatchmaker, ID: matchmaker.ID}

	created := 0
	for i := 0; i+1 < len(candidates); i += 2 {
		s, err := engine.Create(ctx, lifecycle.CreateRequest{
			MatchmakerID:     matchmaker.ID,
			FirstPartyID:     candidates[i].ID,
			SecondPartyID:    candidates[i+1].ID,
			MatchingReason:   "demo pairing",
			DecisionDeadline: time.Now().Add(72 * time.Hour),
		})
		if err != nil {
			log.Error("failed to create demo suggestion", "err", err)
			continue
		}
		created++

		// Walk every other suggestion forward so the demo has some variety.
		if i%4 != 0 {
			continue
		}
		steps := []lifecycle.TransitionRequest{
			{RequestedStatus: status.FirstPartyApproved, Actor: lifecycle.Actor{Role: lifecycle.RoleFirstParty, ID: s.FirstPartyID}},
			{RequestedStatus: status.PendingSecondParty, Actor: mm},
		}
		for _, step := range steps {
			step.SuggestionID = s.ID
			if _, err := engine.Transition(ctx, step); err != nil {
				log.Error("failed to advance demo suggestion", "suggestion_id", s.ID, "err", err)
				break
			}
		}
	}

	log.Info("seeding completed", "suggestions", created)
}
