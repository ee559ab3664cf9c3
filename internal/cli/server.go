package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizbattle-service/internal/app"
	"quizbattle-service/internal/auth"
	"quizbattle-service/internal/config"
	"quizbattle-service/internal/domain"
	"quizbattle-service/internal/infra/memory"
	pgstore "quizbattle-service/internal/infra/postgres"
	redisinfra "quizbattle-service/internal/infra/redis"
	"quizbattle-service/internal/registry"
	"quizbattle-service/internal/sweeper"
	transport "quizbattle-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	bankTTL := config.TTLDuration(cfg.Battle.BankCacheTTL, 10*time.Minute)
	inviteTTL := config.TTLDuration(cfg.Battle.InviteTTL, time.Hour)
	grace := config.TTLDuration(cfg.Battle.DeadlineGrace, 5*time.Second)
	sweepInterval := config.TTLDuration(cfg.Battle.SweepInterval, time.Minute)
	tokenTTL := config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour)

	var (
		battleStore app.BattleStore
		userStore   app.UserStore
		folderStore app.FolderStore
		inviteStore app.InviteStore
		bankLoader  memory.BankLoader
	)

	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		battleStore = pgstore.NewBattleStore(db)
		userStore = pgstore.NewUserStore(db)
		folderStore = pgstore.NewFolderStore(db)
		inviteStore = pgstore.NewInviteStore(db)
		bankLoader = pgstore.NewBankLoader(pool)
	} else {
		log.Printf("postgres not configured, using in-memory stores with demo data")
		users, folders, banks := demoData()
		memUsers := memory.NewUserStore(users...)
		battleStore = memory.NewBattleStore(memUsers)
		userStore = memUsers
		folderStore = memory.NewFolderStore(folders...)
		inviteStore = memory.NewInviteStore()
		bankLoader = memory.NewStaticBankLoader(banks)
	}

	var bank app.QuestionBank
	var presence registry.Presence
	if redisClient != nil {
		bank = redisinfra.NewBankCache(redisClient, bankLoader, bankTTL)
		presence = redisinfra.NewPresenceStore(redisClient, 24*time.Hour)
	} else {
		bank = memory.NewBankCache(bankLoader, bankTTL)
	}

	reg := registry.New(presence)
	invites := app.NewInviteService(inviteStore, reg, inviteTTL)
	battles := app.NewBattleService(battleStore, userStore, folderStore, bank, reg, invites, grace)
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, tokenTTL)

	authHandler := transport.NewAuthHandler(userStore, tokens)
	battleHandler := transport.NewBattleHandler(battles, invites, folderStore)
	wsHandler := transport.NewWSHandler(reg, battles, invites)
	router := transport.NewRouter(authHandler, battleHandler, wsHandler, tokens)

	sweep := sweeper.New(battles, invites, sweepInterval)
	if err := sweep.Start(ctx); err != nil {
		return err
	}
	defer sweep.Stop()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quizbattle service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// demoData provides a minimal seeded world for running without Postgres.
func demoData() ([]domain.User, []domain.Folder, map[uuid.UUID][]domain.Question) {
	alice := uuid.New()
	bob := uuid.New()
	aliceHash, _ := auth.HashPassword("password")
	bobHash, _ := auth.HashPassword("password")

	folderID := uuid.New()
	bank := []domain.Question{
		{ID: uuid.New(), FolderID: folderID, Text: "What is 2 + 2?", Answer: "4", Points: 10},
		{ID: uuid.New(), FolderID: folderID, Text: "Capital of France?", Answer: "Paris", Explanation: "Paris has been the capital since 987.", Points: 10},
		{ID: uuid.New(), FolderID: folderID, Text: "H2O is the formula for what?", Answer: "water", Points: 10},
	}

	users := []domain.User{
		{ID: alice, Email: "alice@example.com", Username: "alice", PasswordHash: aliceHash, CreatedAt: time.Now()},
		{ID: bob, Email: "bob@example.com", Username: "bob", PasswordHash: bobHash, CreatedAt: time.Now()},
	}
	folders := []domain.Folder{
		{ID: folderID, OwnerID: alice, Name: "General Knowledge", QuestionCount: len(bank), CreatedAt: time.Now()},
	}
	return users, folders, map[uuid.UUID][]domain.Question{folderID: bank}
}
