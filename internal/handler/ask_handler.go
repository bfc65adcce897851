package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/response"
	"github.com/xxxsen/docqa/internal/service"
)

type AskHandler struct {
	ask *service.AskService
}

func NewAskHandler(ask *service.AskService) *AskHandler {
	return &AskHandler{ask: ask}
}

type askRequest struct {
	Query      string `json:"query"`
	DocumentID *int64 `json:"document_id"`
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.DocumentID != nil && *req.DocumentID <= 0 {
		// the web form sends 0 for "all documents"
		req.DocumentID = nil
	}
	res, err := h.ask.Ask(c.Request.Context(), getUserID(c), req.Query, req.DocumentID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}
