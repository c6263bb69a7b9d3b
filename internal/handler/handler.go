// Package handler - HTTP API сервиса сцен: SSE-поток хода и запись памяти.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"scene-server/internal/memory"
	"scene-server/internal/models"
	"scene-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TurnStreamer запускает ход и отдаёт его события.
type TurnStreamer interface {
	Events(ctx context.Context, req service.TurnRequest, mode service.Mode) <-chan models.TurnEvent
}

// MemoryPutter синхронно записывает память.
type MemoryPutter interface {
	Put(ctx context.Context, req memory.PutRequest) (memory.PutResult, error)
}

// APIError - тело ответа с ошибкой.
type APIError struct {
	Message string `json:"message"`
}

// turnBody - тело POST /api/chats/:chatId/turns.
type turnBody struct {
	Query string          `json:"query" binding:"required"`
	Kind  models.TurnKind `json:"kind"`
	Mode  service.Mode    `json:"mode"`
}

// SceneHandler обрабатывает HTTP-запросы к сервису сцен.
type SceneHandler struct {
	turns    TurnStreamer
	memories MemoryPutter
	logger   *zap.Logger
}

func NewSceneHandler(turns TurnStreamer, memories MemoryPutter, logger *zap.Logger) *SceneHandler {
	return &SceneHandler{
		turns:    turns,
		memories: memories,
		logger:   logger.Named("SceneHandler"),
	}
}

// RegisterRoutes регистрирует маршруты API и /health.
func (h *SceneHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	{
		api.GET("/chats/:chatId/sse", h.streamTurnQuery)
		api.POST("/chats/:chatId/turns", h.streamTurnBody)
		api.POST("/memories", h.putMemories)
	}
}

func (h *SceneHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SceneHandler) streamTurnQuery(c *gin.Context) {
	h.streamTurn(c, c.Query("q"), models.TurnKind(c.Query("kind")), service.Mode(c.Query("mode")))
}

func (h *SceneHandler) streamTurnBody(c *gin.Context) {
	var body turnBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	h.streamTurn(c, body.Query, body.Kind, body.Mode)
}

// streamTurn проверяет параметры до начала потока; после первого байта ошибки
// приходят событием error.
func (h *SceneHandler) streamTurn(c *gin.Context, query string, kind models.TurnKind, mode service.Mode) {
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid chat id"})
		return
	}
	if strings.TrimSpace(query) == "" {
		c.JSON(http.StatusBadRequest, APIError{Message: models.ErrEmptyQuery.Error()})
		return
	}
	if kind == "" {
		kind = models.TurnStory
	}
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, APIError{Message: "kind must be story or friend"})
		return
	}
	if mode == "" {
		mode = service.ModeStream
	}
	if !mode.Valid() {
		c.JSON(http.StatusBadRequest, APIError{Message: "mode must be stream or blocking"})
		return
	}

	log := h.logger.With(zap.String("chatID", chatID.String()), zap.String("kind", string(kind)), zap.String("mode", string(mode)))
	events := h.turns.Events(c.Request.Context(), service.TurnRequest{ChatID: chatID, Query: query, Kind: kind}, mode)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sent := 0
	clientGone := c.Stream(func(_ io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(string(ev.Type), ev.Data)
		sent++
		return true
	})
	if clientGone {
		log.Info("Client disconnected during turn", zap.Int("eventsSent", sent))
		return
	}
	log.Debug("Turn stream finished", zap.Int("eventsSent", sent))
}

func (h *SceneHandler) putMemories(c *gin.Context) {
	var req memory.PutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	if req.Empty() {
		c.JSON(http.StatusBadRequest, APIError{Message: "no memories to write"})
		return
	}
	res, err := h.memories.Put(c.Request.Context(), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *SceneHandler) handleServiceError(c *gin.Context, err error) {
	var status int
	var apiErr APIError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
		apiErr = APIError{Message: "Resource not found"}
	case errors.Is(err, models.ErrInvalidMemory), errors.Is(err, models.ErrEmptyQuery):
		status = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, context.Canceled):
		status = 499
		apiErr = APIError{Message: "request canceled"}
	default:
		status = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}
	h.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, apiErr)
}
