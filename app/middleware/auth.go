package middleware

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/beego/beego/v2/server/web/context"
	"github.com/docuchat/backend-go/internal/config"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/golang-jwt/jwt/v5"
)

// 无需认证的路径前缀
var authExemptPrefixes = []string{
	"/health",
	"/metrics",
}

// AuthMiddleware Bearer令牌校验。
// 未配置JWT密钥时整个中间件为空操作。
// 配置不可用而部署又要求JWT时拒绝请求，不降级放行。
func AuthMiddleware(ctx *context.Context) {
	cfg := config.GetAppConfig()
	if cfg == nil {
		if os.Getenv("JWT_SECRET") != "" {
			logger.Error("Config unavailable while JWT auth is required, rejecting request")
			writeAuthError(ctx, "authentication unavailable")
		}
		return
	}
	if !cfg.JWT.Enabled || cfg.JWT.Secret == "" {
		return
	}

	path := ctx.Input.URL()
	if path == "/" {
		return
	}
	for _, prefix := range authExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return
		}
	}

	header := ctx.Input.Header("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		writeAuthError(ctx, "missing bearer token")
		return
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWT.Secret), nil
	})
	if err != nil || !token.Valid {
		writeAuthError(ctx, "invalid or expired token")
		return
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		if sub, err := claims.GetSubject(); err == nil {
			ctx.Input.SetData("subject", sub)
		}
	}
}

func writeAuthError(ctx *context.Context, message string) {
	ctx.Output.SetStatus(http.StatusUnauthorized)
	_ = ctx.Output.JSON(map[string]interface{}{
		"success": false,
		"error":   message,
	}, false, false)
}
