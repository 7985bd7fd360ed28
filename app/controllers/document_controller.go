package controllers

import (
	"io"
	"net/http"

	"github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/services"
	"go.uber.org/zap"
)

// DocumentController 文档上传、列表、详情与删除
type DocumentController struct {
	BaseController
	documents *services.DocumentService
	lifecycle *services.IngestService
}

func (c *DocumentController) Prepare() {
	c.documents = deps.Documents
	c.lifecycle = deps.Lifecycle
}

// documentView 列表与详情的响应结构
type documentView struct {
	ID         uint   `json:"id"`
	Title      string `json:"title"`
	Filename   string `json:"filename"`
	ByteSize   int64  `json:"byte_size"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	UploadedAt string `json:"uploaded_at"`
}

func toDocumentView(doc *models.Document) documentView {
	return documentView{
		ID:         doc.DocumentID,
		Title:      doc.Title,
		Filename:   doc.Filename,
		ByteSize:   doc.ByteSize,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount,
		UploadedAt: doc.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// POST /upload/
// multipart表单：title + file。上传后同步入库，响应反映最终状态。
func (c *DocumentController) Upload() {
	title := c.GetString("title")

	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	ctx := c.Ctx.Request.Context()
	doc, err := c.documents.Create(ctx, title, header.Filename, data)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	if err := c.lifecycle.Ingest(ctx, doc.DocumentID); err != nil {
		logger.Warn("Upload accepted but ingestion failed",
			zap.Uint("documentID", doc.DocumentID), zap.Error(err))
		// 文档记录保留为failed，可通过重新入库接口重试
		appErr := errors.GetAppError(err)
		c.JSON(appErr.HTTPCode, map[string]interface{}{
			"success":   false,
			"error":     appErr.Message,
			"code":      appErr.Code,
			"retryable": appErr.Retryable,
			"data":      map[string]interface{}{"id": doc.DocumentID, "status": models.DocumentStatusFailed},
		})
		return
	}

	// 重新读取以拿到最终chunk_count与状态
	fresh, err := c.documents.Get(ctx, doc.DocumentID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONCreated(toDocumentView(fresh))
}

// GET /api/list/
// 按上传时间倒序返回全部文档。
func (c *DocumentController) List() {
	docs, err := c.documents.List(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}

	views := make([]documentView, 0, len(docs))
	for i := range docs {
		views = append(views, toDocumentView(&docs[i]))
	}
	c.JSONSuccess(map[string]interface{}{
		"documents": views,
		"total":     len(views),
	})
}

// GET /api/documents/:id/
func (c *DocumentController) Get() {
	id, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	doc, err := c.documents.Get(c.Ctx.Request.Context(), id)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(toDocumentView(doc))
}

// DELETE /api/delete/:id/
// 删除走生命周期协调器：先清向量索引，再删除记录与原始文件。
func (c *DocumentController) Delete() {
	id, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	if err := c.lifecycle.Remove(c.Ctx.Request.Context(), id); err != nil {
		c.JSONAppError(err)
		return
	}
	c.Ctx.Output.SetStatus(http.StatusNoContent)
}

// POST /api/documents/:id/ingest/
// 对failed状态的文档重新触发入库。
func (c *DocumentController) Reingest() {
	id, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	ctx := c.Ctx.Request.Context()
	if err := c.lifecycle.Ingest(ctx, id); err != nil {
		c.JSONAppError(err)
		return
	}

	doc, err := c.documents.Get(ctx, id)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(toDocumentView(doc))
}
