package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sentientos/internal/app"
	"sentientos/internal/render"
	"sentientos/internal/transport/http/middleware"
	"sentientos/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type TurnRequest struct {
	Content string `json:"content" form:"content" binding:"required"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) NewConversation(c *gin.Context) {
	if _, err := h.chatService.NewConversation(c.Request.Context(), middleware.RequestContext(c)); err != nil {
		log.Printf("create conversation failed: %v", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *ChatHandler) SelectConversation(c *gin.Context) {
	if _, err := h.chatService.SelectConversation(c.Request.Context(), middleware.RequestContext(c), c.Param("id")); err != nil {
		log.Printf("select conversation failed: %v", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.chatService.DeleteConversation(c.Request.Context(), middleware.RequestContext(c), c.Param("id")); err != nil {
		log.Printf("delete conversation failed: %v", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *ChatHandler) Download(c *gin.Context) {
	message, err := h.chatService.Message(middleware.RequestContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, app.ErrMessageNotFound) {
			c.String(http.StatusNotFound, "not found")
			return
		}
		log.Printf("load message failed: %v", err)
		c.String(http.StatusInternalServerError, "load message failed")
		return
	}
	if !render.HasArtifact(*message) {
		c.String(http.StatusNotFound, "not found")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", render.ArtifactName(message.CreatedAt)))
	c.Data(http.StatusOK, render.ArtifactContentType+"; charset=utf-8", []byte(message.Content))
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	conversations, err := h.chatService.ListConversations(middleware.RequestContext(c))
	if err != nil {
		writeError(c, err, "list conversations failed")
		return
	}
	response.OK(c, conversations)
}

// Messages returns the rendered transcript of the active conversation.
func (h *ChatHandler) Messages(c *gin.Context) {
	ctx := c.Request.Context()
	rc := middleware.RequestContext(c)
	if id := c.Query("chat_id"); id != "" {
		if _, err := h.chatService.SelectConversation(ctx, rc, id); err != nil {
			writeError(c, err, "select conversation failed")
			return
		}
	}
	conversation, err := h.chatService.EnsureActiveConversation(ctx, rc)
	if err != nil {
		writeError(c, err, "load conversation failed")
		return
	}
	messages, err := h.chatService.Transcript(ctx, rc, conversation.ChatID)
	if err != nil {
		writeError(c, err, "load transcript failed")
		return
	}
	views, err := render.Transcript(messages)
	if err != nil {
		writeError(c, err, "render transcript failed")
		return
	}
	response.OK(c, gin.H{
		"conversation": conversation,
		"tier":         h.chatService.Tier(rc.User),
		"messages":     views,
	})
}

// Turn streams one exchange as server-sent events. Every data line is a
// JSON string; the stream ends with a "done" or an "error" event.
func (h *ChatHandler) Turn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeEmptyMessage, "message content is empty")
		return
	}

	ctx := c.Request.Context()
	rc := middleware.RequestContext(c)
	conversation, err := h.chatService.EnsureActiveConversation(ctx, rc)
	if err != nil {
		writeError(c, err, "load conversation failed")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	reply, err := h.chatService.SubmitTurn(ctx, rc, conversation, req.Content, func(chunk string) error {
		if err := writeEvent(c.Writer, "", chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		log.Printf("stream turn failed: %v", err)
		_ = writeEvent(c.Writer, "error", "inference failed")
		flusher.Flush()
		return
	}

	done := gin.H{"chat_id": conversation.ChatID}
	if reply != nil {
		done["msg_id"] = reply.MsgID
	}
	_ = writeEvent(c.Writer, "done", done)
	flusher.Flush()
}

func (h *ChatHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file is required")
		return
	}
	if !app.AllowedUpload(header.Filename) {
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedUpload, "allowed types: .txt, .py, .js, .pdf")
		return
	}
	if header.Size > app.MaxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedUpload, "file exceeds 10MB")
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "cannot read file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, app.MaxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "cannot read file")
		return
	}

	ctx := c.Request.Context()
	rc := middleware.RequestContext(c)
	conversation, err := h.chatService.EnsureActiveConversation(ctx, rc)
	if err != nil {
		writeError(c, err, "load conversation failed")
		return
	}
	messages, err := h.chatService.IngestUpload(ctx, rc, conversation, app.Upload{Name: header.Filename, Data: data})
	if err != nil {
		writeError(c, err, "upload analysis failed")
		return
	}
	response.OK(c, gin.H{"conversation": conversation, "messages": messages})
}

func writeEvent(w io.Writer, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeEmptyMessage, err.Error())
	case errors.Is(err, app.ErrUnsupportedUpload):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedUpload, err.Error())
	case errors.Is(err, app.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
	case errors.Is(err, app.ErrMessageNotFound):
		response.Error(c, http.StatusNotFound, response.CodeMessageNotFound, err.Error())
	case errors.Is(err, app.ErrInference):
		log.Printf("%s: %v", fallback, err)
		response.Error(c, http.StatusBadGateway, response.CodeInferenceFailed, "inference failed")
	default:
		log.Printf("%s: %v", fallback, err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
