package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/docuchat/backend-go/internal/services"
)

// ChatController 针对单个文档的检索增强问答
type ChatController struct {
	BaseController
	chat *services.ChatService
}

func (c *ChatController) Prepare() {
	c.chat = deps.Chat
}

type chatRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// POST /api/chat/:id/
func (c *ChatController) Ask() {
	id, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	var req chatRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid JSON body")
		return
	}

	answer, err := c.chat.Ask(c.Ctx.Request.Context(), id, req.Question, req.TopK)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(answer)
}
