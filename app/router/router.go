package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/docuchat/backend-go/app/controllers"
	"github.com/docuchat/backend-go/app/middleware"
	"github.com/docuchat/backend-go/internal/config"
)

// Init 注册全部路由，必须在配置加载与服务注入之后调用
func Init() {
	web.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware)
	web.InsertFilter("/*", web.BeforeRouter, middleware.AuthMiddleware)

	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")

	if cfg := config.GetAppConfig(); cfg != nil && cfg.Metrics.Enabled {
		web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")
	}

	documentController := &controllers.DocumentController{}
	web.Router("/upload/", documentController, "post:Upload")
	web.Router("/api/list/", documentController, "get:List")
	web.Router("/api/delete/:id/", documentController, "delete:Delete")
	web.Router("/api/documents/:id/", documentController, "get:Get")
	web.Router("/api/documents/:id/ingest/", documentController, "post:Reingest")

	web.Router("/api/chat/:id/", &controllers.ChatController{}, "post:Ask")
	web.Router("/api/search/:id/", &controllers.SearchController{}, "get:Search")
}
