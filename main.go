package main

import (
	"time"

	"github.com/HousDev/viewtrack/config"
	"github.com/HousDev/viewtrack/models"
	"github.com/HousDev/viewtrack/routes"
	"github.com/HousDev/viewtrack/utils"
	"github.com/HousDev/viewtrack/views"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.ViewEvent{}, &models.ViewDedupClaim{})

	engine := views.NewEngine(db, time.Duration(cfg.DedupWindowMinutes)*time.Minute)
	r := routes.SetupRouter(engine)

	// Background housekeeping: expired dedup claims, optional event retention
	views.StartRetentionSweeper(engine, time.Hour, cfg.ViewRetentionDays)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
