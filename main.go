package main

import (
	"github.com/cppla/questforge/config"
	"github.com/cppla/questforge/gamification"
	"github.com/cppla/questforge/models"
	"github.com/cppla/questforge/routes"
	"github.com/cppla/questforge/storage"
	"github.com/cppla/questforge/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.User{}, &models.Quest{}, &models.App{}, &models.Review{})

	records := storage.NewGormStore(db)
	snapshots := storage.NewRedisSnapshotStore(utils.GetRedis())
	engine := gamification.NewEngine(records, snapshots, utils.Sugar)

	r := routes.SetupRouter(db, engine)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
