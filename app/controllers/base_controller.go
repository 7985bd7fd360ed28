package controllers

import (
	"net/http"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"github.com/docuchat/backend-go/internal/errors"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONCreated writes a success envelope with 201 status.
func (c *BaseController) JSONCreated(data interface{}) {
	c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// JSONAppError 将AppError转换为HTTP错误响应
func (c *BaseController) JSONAppError(err error) {
	appErr := errors.GetAppError(err)
	c.JSON(appErr.HTTPCode, map[string]interface{}{
		"success":   false,
		"error":     appErr.Message,
		"code":      appErr.Code,
		"retryable": appErr.Retryable,
	})
}

// mustParseUintParam 解析URL参数为uint
func (c *BaseController) mustParseUintParam(key string) (uint, bool) {
	value := c.Ctx.Input.Param(key)
	if value == "" {
		c.JSONError(http.StatusBadRequest, "missing required parameter")
		return 0, false
	}

	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "invalid parameter format")
		return 0, false
	}
	return uint(id), true
}
