package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cppla/rewardledger/config"
	"github.com/cppla/rewardledger/controllers"
	"github.com/cppla/rewardledger/models"
	"github.com/cppla/rewardledger/rewards"
	"github.com/cppla/rewardledger/routes"
	"github.com/cppla/rewardledger/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(&models.RewardAccount{}, &models.RewardTransaction{})

	rules, err := cfg.RewardRules()
	if err != nil {
		utils.Sugar.Fatalf("invalid reward rules: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		utils.Sugar.Fatalf("invalid reward timezone: %v", err)
	}
	ledger, err := rewards.NewLedger(rewards.NewGormStore(db), rules, rewards.WithLogger(utils.Logger.Named("ledger")))
	if err != nil {
		utils.Sugar.Fatalf("failed to build reward ledger: %v", err)
	}

	deps := routes.Deps{
		Ledger: ledger,
		Clock:  controllers.Clock{Location: loc},
	}
	// Keep Cache a nil interface when Redis is off.
	if cache := utils.NewRedisCache(utils.GetRedis()); cache != nil {
		deps.Cache = cache
	}
	r := routes.SetupRouter(deps)

	if interval := cfg.AuditInterval(); interval > 0 {
		sched, err := rewards.StartAuditScheduler(ledger, interval, utils.Logger.Named("audit"))
		if err != nil {
			utils.Sugar.Fatalf("failed to start ledger audit: %v", err)
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				utils.Sugar.Warnf("audit scheduler shutdown: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	utils.Sugar.Infof("Starting reward ledger on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(ctx, ":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Errorf("server stopped with error: %v", err)
	}
}
