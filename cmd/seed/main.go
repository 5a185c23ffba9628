package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/spotexchange/internal/auth"
	"github.com/xtrntr/spotexchange/internal/config"
	"github.com/xtrntr/spotexchange/internal/db"
	"github.com/xtrntr/spotexchange/internal/exchange"
	"github.com/xtrntr/spotexchange/internal/logging"

	"go.uber.org/zap"
)

type holding struct {
	symbol string
	amount string
}

type trader struct {
	username string
	password string
	balance  string
	assets   []holding
}

var traders = []trader{
	{
		username: "trader1",
		password: "Password@123",
		balance:  "50000",
		assets:   []holding{{"BTC", "10"}, {"ETH", "10"}},
	},
	{
		username: "trader2",
		password: "Password@123",
		balance:  "25000",
		assets:   []holding{{"BTC", "10"}, {"ETH", "5"}},
	},
}

// Seed the database with two funded traders
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(ctx)

	ex := exchange.NewExchange(database, nil, exchange.Options{Symbols: cfg.Symbols, Logger: logger})
	authService := auth.NewAuthService(database, cfg.JWTSecret, cfg.JWTTTL)

	for _, t := range traders {
		if _, err := database.GetUserByUsername(ctx, t.username); err == nil {
			logger.Info("trader already exists, skipping", zap.String("username", t.username))
			continue
		} else if !errors.Is(err, exchange.ErrNotFound) {
			logger.Fatal("failed to look up trader", zap.String("username", t.username), zap.Error(err))
		}

		user, err := authService.Register(ctx, t.username, t.password)
		if err != nil {
			logger.Fatal("failed to create trader", zap.String("username", t.username), zap.Error(err))
		}
		if err := ex.Deposit(ctx, user.ID, decimal.RequireFromString(t.balance)); err != nil {
			logger.Fatal("failed to fund trader", zap.String("username", t.username), zap.Error(err))
		}
		for _, h := range t.assets {
			if err := ex.DepositAsset(ctx, user.ID, h.symbol, decimal.RequireFromString(h.amount)); err != nil {
				logger.Fatal("failed to credit asset", zap.String("username", t.username), zap.String("symbol", h.symbol), zap.Error(err))
			}
		}
		logger.Info("seeded trader", zap.String("username", t.username), zap.Int("id", user.ID), zap.String("balance", t.balance))
	}

	fmt.Println("Successfully seeded the database with test traders!")
}
