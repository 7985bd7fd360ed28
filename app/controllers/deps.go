package controllers

import (
	"context"

	"github.com/docuchat/backend-go/internal/services"
)

// ReadinessProbe 组件就绪检查
type ReadinessProbe func(ctx context.Context) error

// Dependencies 控制器依赖的服务集合。
// beego通过反射按请求实例化控制器，服务实例在启动时注入到包级注册表，
// 控制器在Prepare()中绑定。
type Dependencies struct {
	Documents *services.DocumentService
	Lifecycle *services.IngestService
	Chat      *services.ChatService
	Search    *services.SearchService
	Probes    map[string]ReadinessProbe
}

var deps Dependencies

// InitDependencies 注入服务实例，必须在路由注册前调用
func InitDependencies(d Dependencies) {
	deps = d
}
