package main

import (
	"time"

	"inkpress/config"
	"inkpress/models"
	"inkpress/routes"
	"inkpress/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.User{}, &models.Post{})

	drafts := utils.NewDraftStore(time.Duration(cfg.DraftTTLMinutes) * time.Minute)

	r := routes.SetupRouter(db, drafts)

	utils.Sugar.Infof("starting inkpress on port %s", cfg.AppPort)
	if err := utils.Serve(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
