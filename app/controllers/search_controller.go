package controllers

import (
	"net/http"
	"strconv"

	"github.com/docuchat/backend-go/internal/services"
)

// SearchController 文档内关键词检索
type SearchController struct {
	BaseController
	search *services.SearchService
}

func (c *SearchController) Prepare() {
	c.search = deps.Search
}

// GET /api/search/:id/?q=...&limit=...
func (c *SearchController) Search() {
	if c.search == nil || !c.search.Enabled() {
		c.JSONError(http.StatusServiceUnavailable, "keyword search is not enabled")
		return
	}

	id, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	query := c.GetString("q")
	limit, _ := strconv.Atoi(c.GetString("limit", "10"))

	matches, err := c.search.Search(c.Ctx.Request.Context(), id, query, limit)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"matches": matches,
		"total":   len(matches),
	})
}
