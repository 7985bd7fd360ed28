package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"github.com/docuchat/backend-go/app/bootstrap"
	"github.com/docuchat/backend-go/app/router"
	"github.com/docuchat/backend-go/internal/config"
	"github.com/docuchat/backend-go/internal/logger"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	web.BConfig.AppName = "PDF Chat Service"
	web.BConfig.CopyRequestBody = true
	if p, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	}

	router.Init()

	logger.Info("🚀 Starting PDF Chat Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
