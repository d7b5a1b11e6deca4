package main // Entry point package

import (
    "log"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/voltgrid/ev-reservation/internal/config"
    "github.com/voltgrid/ev-reservation/internal/database"
    "github.com/voltgrid/ev-reservation/internal/handler"
    "github.com/voltgrid/ev-reservation/internal/queue"
    "github.com/voltgrid/ev-reservation/internal/repository"
    "github.com/voltgrid/ev-reservation/internal/reservation"
    "github.com/voltgrid/ev-reservation/internal/router"
    publisher "github.com/voltgrid/ev-reservation/internal/service"
)

func main() {
    // .env is optional; real deployments set the environment directly.
    _ = godotenv.Load()

    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    // Redis backs the rate limiter; nil degrades to no limiting.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Printf("redis unavailable, rate limiting disabled")
    }

    reservations := repository.NewReservationRepo(db)
    stations := repository.NewStationRepo(db)
    users := repository.NewUserRepo(db)
    tenants := repository.NewTenantRepo(db)
    dir := repository.NewDirectory(stations, users, tenants)

    svc := reservation.NewService(reservations, dir, publisher.New(), nil)

    // Expiry sweep runs on its own schedule; transitions are
    // compare-and-set so racing an API cancel is harmless.
    sweeper := reservation.NewSweeper(svc)
    if err := sweeper.Start(cfg.SweepInterval); err != nil {
        log.Fatalf("sweeper: %v", err)
    }
    defer sweeper.Stop()

    // The station event feed drives consume/complete transitions.
    go queue.NewConsumer(svc, stations).Start()

    e := echo.New()
    router.RegisterRoutes(e)
    router.RegisterAuth(e, handler.NewAuthHandler(users, cfg.JWTSecret, cfg.AccessTTLMin), cfg.JWTSecret)
    router.RegisterReservations(e, handler.NewReservationHandler(svc, users), cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
