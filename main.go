package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vladimirov321/FitTrack/internal/config"
	"github.com/vladimirov321/FitTrack/internal/db"
	"github.com/vladimirov321/FitTrack/internal/handler"
	"github.com/vladimirov321/FitTrack/internal/service"
)

const tokenSweepInterval = time.Hour

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	pg := &db.Postgres{Pool: pool}
	if err := pg.EnsureAuthSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	authService, err := service.NewAuthService(pg, pg, cfg.Auth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	go sweepExpiredTokens(ctx, authService)

	router := handler.NewRouter(authService, splitOrigins(cfg.CORS.AllowedOrigins))

	log.Printf("FitTrack API listening on :%s", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func sweepExpiredTokens(ctx context.Context, authService *service.AuthService) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := authService.SweepExpiredTokens(ctx)
			if err != nil {
				log.Printf("token sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("token sweep: removed %d expired refresh tokens", n)
			}
		}
	}
}

func splitOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	return strings.Split(origins, ",")
}
