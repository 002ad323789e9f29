package controller

import (
	"errors"
	"strings"

	"realtime-chat-be/internal/dto"
	"realtime-chat-be/internal/entity"
	"realtime-chat-be/internal/pkg/serverutils"
	"realtime-chat-be/internal/service"
	"realtime-chat-be/pkg/chat/chaterr"
	"realtime-chat-be/pkg/chat/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	ListConversations(ctx *fiber.Ctx) error
	CloseList(ctx *fiber.Ctx) error
	CreateChat(ctx *fiber.Ctx) error
	OpenConversation(ctx *fiber.Ctx) error
	CloseConversation(ctx *fiber.Ctx) error
	GetTranscript(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	RetryMessage(ctx *fiber.Ctx) error
	MarkRead(ctx *fiber.Ctx) error
	Resubscribe(ctx *fiber.Ctx) error
	SearchUsers(ctx *fiber.Ctx) error
	EndSession(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService    service.IChatService
	sessionService service.ISessionService
	auth           fiber.Handler
}

func NewChatController(chatService service.IChatService, sessionService service.ISessionService, auth fiber.Handler) IChatController {
	return &chatController{
		chatService:    chatService,
		sessionService: sessionService,
		auth:           auth,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(c.auth)
	h.Get("conversations", c.ListConversations)
	h.Delete("conversations/view", c.CloseList)
	h.Post("conversations", c.CreateChat)
	h.Post("conversations/:id/open", c.OpenConversation)
	h.Post("conversations/:id/close", c.CloseConversation)
	h.Get("conversations/:id/messages", c.GetTranscript)
	h.Post("conversations/:id/messages", c.SendMessage)
	h.Post("conversations/:id/messages/:messageId/retry", c.RetryMessage)
	h.Post("conversations/:id/read", c.MarkRead)
	h.Post("conversations/:id/resubscribe", c.Resubscribe)
	h.Get("users/search", c.SearchUsers)
	h.Delete("session", c.EndSession)
}

// ListConversations opens the list view and returns it ordered by last activity.
func (c *chatController) ListConversations(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	list, err := c.sessionFor(ctx, userId).OpenList(ctx.UserContext())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get conversations", service.ToSummaryResponses(list)))
}

func (c *chatController) CloseList(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	if err := c.sessionFor(ctx, userId).CloseList(ctx.UserContext()); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success close conversation list", nil))
}

func (c *chatController) CreateChat(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.CreateChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.CreateChat(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create conversation", res))
}

func (c *chatController) OpenConversation(ctx *fiber.Ctx) error {
	userId, conversationId, err := c.identify(ctx)
	if err != nil {
		return err
	}

	view, err := c.sessionFor(ctx, userId).OpenConversation(ctx.UserContext(), conversationId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success open conversation", service.ToTranscriptResponse(view)))
}

func (c *chatController) CloseConversation(ctx *fiber.Ctx) error {
	userId, conversationId, err := c.identify(ctx)
	if err != nil {
		return err
	}

	if err := c.sessionFor(ctx, userId).CloseConversation(ctx.UserContext(), conversationId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success close conversation", nil))
}

func (c *chatController) GetTranscript(ctx *fiber.Ctx) error {
	userId, conversationId, err := c.identify(ctx)
	if err != nil {
		return err
	}

	view, err := c.sessionFor(ctx, userId).Transcript(ctx.UserContext(), conversationId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get messages", service.ToTranscriptResponse(view)))
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	userId, conversationId, err := c.identify(ctx)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	msg, err := c.sessionFor(ctx, userId).Send(ctx.UserContext(), conversationId, req.Content)
	return c.messageResult(ctx, "Success send message", msg, err)
}

func (c *chatController) RetryMessage(ctx *fiber.Ctx) error {
	userId, conversationId, err := c.identify(ctx)
	if err != nil {
		return err
	}
	messageId, err := uuid.Parse(ctx.Params("messageId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid message id")
	}

	msg, err := c.sessionFor(ctx, userId).Retry(ctx.UserContext(), conversationId, messageId)
	return c.messageResult(ctx, "Success retry message", msg, err)
}

// messageResult reports a failed send together with the entry left in the transcript.
func (c *chatController) messageResult(ctx *fiber.Ctx, okMessage string, msg entity.Message, err error) error {
	if err != nil {
		if errors.Is(err, chaterr.ErrPersistence) {
			return ctx.Status(serverutils.StatusFor(err)).JSON(serverutils.BaseResponse[*dto.MessageResponse]{
				Success: false,
				Message: err.Error(),
				Data:    service.ToMessageResponse(msg),
			})
		}
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse(okMessage, service.ToMessageResponse(msg)))
}

func (c *chatController) MarkRead(ctx *fiber.Ctx) error {
	userId, conversationId, err := c.identify(ctx)
	if err != nil {
		return err
	}

	if err := c.sessionFor(ctx, userId).MarkRead(ctx.UserContext(), conversationId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success mark conversation read", nil))
}

func (c *chatController) Resubscribe(ctx *fiber.Ctx) error {
	userId, conversationId, err := c.identify(ctx)
	if err != nil {
		return err
	}

	if err := c.sessionFor(ctx, userId).Resubscribe(ctx.UserContext(), conversationId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success resubscribe", nil))
}

// SearchUsers takes ?q= and an optional comma separated ?exclude= list of ids.
func (c *chatController) SearchUsers(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var exclude []uuid.UUID
	if raw := ctx.Query("exclude"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid exclude id")
			}
			exclude = append(exclude, id)
		}
	}

	res, err := c.chatService.SearchUsers(ctx.UserContext(), userId, ctx.Query("q"), exclude)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success search users", res))
}

// EndSession tears down the caller's session and every subscription it holds.
func (c *chatController) EndSession(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	c.sessionService.Drop(userId)
	return ctx.JSON(serverutils.SuccessResponse[any]("Success end session", nil))
}

// SessionHeader carries the id of the session that served a request.
const SessionHeader = "X-Chat-Session"

func (c *chatController) sessionFor(ctx *fiber.Ctx, userId uuid.UUID) *session.Session {
	s := c.sessionService.Get(userId)
	ctx.Set(SessionHeader, s.Id().String())
	return s
}

func (c *chatController) identify(ctx *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	conversationId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid conversation id")
	}
	return userId, conversationId, nil
}
