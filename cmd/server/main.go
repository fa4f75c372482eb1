package main // Entry point package

import (
	"context"
	"log" // Logging library
	"time"

	"github.com/joho/godotenv"    // Loads .env files into the environment
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/matiasvr/matchday-reservation/internal/config"   // Internal config loader
	"github.com/matiasvr/matchday-reservation/internal/database" // MySQL connector
	"github.com/matiasvr/matchday-reservation/internal/engine"
	"github.com/matiasvr/matchday-reservation/internal/handler"
	"github.com/matiasvr/matchday-reservation/internal/lock"
	"github.com/matiasvr/matchday-reservation/internal/queue"
	"github.com/matiasvr/matchday-reservation/internal/repository"
	"github.com/matiasvr/matchday-reservation/internal/router" // Internal router setup
	"github.com/matiasvr/matchday-reservation/internal/service/notifier"
	"github.com/matiasvr/matchday-reservation/internal/ticket"
)

// sweepInterval is how often the background sweeper releases expired
// holds back to the pool.  Reads are already expiry-safe; the sweeper
// only bounds how long capacity stays parked in held counters.
const sweepInterval = time.Minute

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	// Redis backs the rate limiter and the waitlist-notify lease.  A nil
	// client is tolerated by both; the service degrades rather than dies.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and notify leases disabled")
	}

	pools := repository.NewPoolRepo(db)
	holds := repository.NewHoldRepo(db, pools)
	reservations := repository.NewReservationRepo(db)
	waitlist := repository.NewWaitlistRepo(db)
	tables := repository.NewTableRepo(db)

	eng := engine.New(engine.Deps{
		Pools:        pools,
		Holds:        holds,
		Reservations: reservations,
		Waitlist:     waitlist,
		Events:       notifier.NewPublisher(),
		Locker:       lock.NewLease(rdb, "lease"),
		Signer:       ticket.NewSigner(cfg.TicketSecret),
	})

	// Background sweeper: expired holds are released on a timer in
	// addition to the expire-before-read checks on the request paths.
	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for range t.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := eng.ReleaseExpiredHolds(ctx); err != nil {
				log.Printf("hold sweep failed: %v", err)
			}
			cancel()
		}
	}()

	// Drain notification intents into logs/notifications.log.  Runs its
	// own reconnect loop, so a broker outage never takes the API down.
	go func() {
		if err := queue.StartIntentConsumer(); err != nil {
			log.Printf("intent consumer stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance
	router.RegisterRoutes(e)
	router.RegisterPatron(e, handler.NewPatronHandler(eng), cfg.JWTSecret, rdb)
	router.RegisterOperator(e, handler.NewOperatorHandler(eng, tables), cfg.JWTSecret)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
