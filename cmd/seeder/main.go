package main

import (
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"

	"planet-chat/auth"
	"planet-chat/domain"
	"planet-chat/lifecycle"
	"planet-chat/repositories"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	// SEED_JWT_SECRET must match the server's JWT_SECRET for the
	// printed tokens to be usable against it.
	JWTSecret     string        `envconfig:"SEED_JWT_SECRET" default:"dev-secret"`
	TokenDuration time.Duration `envconfig:"SEED_TOKEN_DURATION" default:"24h"`
	Rooms         int           `envconfig:"SEED_ROOMS" default:"3"`
	MessagesPer   int           `envconfig:"SEED_MESSAGES_PER_ROOM" default:"10"`
}

var seedUsers = []domain.Participant{
	{UserID: "u-ayumi", DisplayName: "ayumi", UniqueTag: "AYU-001"},
	{UserID: "u-ken", DisplayName: "ken", UniqueTag: "KEN-002"},
	{UserID: "u-rita", DisplayName: "rita", UniqueTag: "RIT-003"},
}

// Seeds the store with a few rooms and messages for local development,
// then prints a usable token per seed user.
func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	logger := logs.GetLoggerFromLevel(slog.LevelInfo)

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	roomRepo := repositories.NewRoomRepository(db)
	messageRepo := repositories.NewMessageRepository(db, logger, 20)

	service := lifecycle.NewService(logger, roomRepo, messageRepo,
		lifecycle.UnmeteredLedger{Log: logger}, nil, nil)

	for i := 0; i < cfg.Rooms; i++ {
		owner := seedUsers[i%len(seedUsers)]
		room, err := service.CreateRoom(fmt.Sprintf("room-%02d", i+1), "🪐", owner.UserID)
		if err != nil {
			log.Fatalf("Failed to create room: %v", err)
		}

		for j := 0; j < cfg.MessagesPer; j++ {
			sender := seedUsers[j%len(seedUsers)]
			msg := domain.Message{
				ID:          uuid.New(),
				Room:        room.ID,
				SenderID:    sender.UserID,
				SenderName:  sender.DisplayName,
				SenderLevel: 1,
				Body:        fmt.Sprintf("seed message %d in %s", j+1, room.Title),
				SentAt:      time.Now().UTC().Add(-time.Duration(cfg.MessagesPer-j) * time.Minute),
			}
			if err := messageRepo.StoreMessage(msg); err != nil {
				log.Fatalf("Failed to store message: %v", err)
			}
		}
		fmt.Printf("🪐 Room seeded: %s (%s), %d messages\n", room.Title, room.ID, cfg.MessagesPer)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenDuration)
	for _, user := range seedUsers {
		token, err := tokens.Generate(user, []string{})
		if err != nil {
			log.Fatalf("Failed to generate token: %v", err)
		}
		fmt.Printf("🔑 %s: %s\n", user.DisplayName, token)
	}
}
