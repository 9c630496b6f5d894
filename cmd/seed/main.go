// Command seed populates the sql backend with test users and content.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"frzterr/internal/config"
	"frzterr/internal/database"
	"frzterr/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	maxDays := flag.Int("days", 90, "Spread content over this many past days")
	randSeed := flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible data")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Printf("Target: %d users, %d posts, clean=%v", *numUsers, *numPosts, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	ctx := context.Background()
	if err := database.ApplySchema(ctx, db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	summary, err := seed.Seed(ctx, db, seed.Options{
		NumUsers:    *numUsers,
		NumPosts:    *numPosts,
		MaxDays:     *maxDays,
		Secret:      cfg.JWTSecret,
		RandSeed:    *randSeed,
		ShouldClean: *shouldClean,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Created %d users, %d posts, %d comments, %d likes, %d reposts, %d follows",
		summary.Users, summary.Posts, summary.Comments, summary.Likes, summary.Reposts, summary.Follows)
	log.Printf("All test users have the password: %s", seed.DefaultPassword)
}
