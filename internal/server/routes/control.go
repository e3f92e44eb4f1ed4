package routes

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/offgate/offgate/internal/cache"
	"github.com/offgate/offgate/internal/notify"
)

// defaultPollTimeout 是长轮询等待消息的默认时长，超时返回 204。
const defaultPollTimeout = 25 * time.Second

// ControlOptions 汇总控制面路由的依赖。
type ControlOptions struct {
	Dispatcher  *notify.Dispatcher
	Notifier    *notify.Notifier
	Store       cache.Store
	PollTimeout time.Duration
}

// inboundMessage 是应用发往拦截器的消息信封。
type inboundMessage struct {
	Type string `json:"type"`
}

// RegisterControlRoutes 暴露 /-/ 前缀下的控制面端点：消息入口、
// 上下文订阅与事件长轮询、分区诊断。这些端点不经过拦截策略。
func RegisterControlRoutes(app *fiber.App, opts ControlOptions) {
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	app.Post("/-/contexts", func(c fiber.Ctx) error {
		sub := opts.Notifier.Subscribe()
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"context": sub.ID})
	})

	app.Delete("/-/contexts/:id", func(c fiber.Ctx) error {
		opts.Notifier.Unsubscribe(c.Params("id"))
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/-/events/:id", func(c fiber.Ctx) error {
		sub, ok := opts.Notifier.Lookup(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "context_unknown"})
		}

		select {
		case msg, open := <-sub.C:
			if !open {
				return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "context_closed"})
			}
			return c.JSON(notify.Envelope(msg))
		case <-time.After(timeout):
			return c.SendStatus(fiber.StatusNoContent)
		}
	})

	app.Post("/-/message", func(c fiber.Ctx) error {
		var payload inboundMessage
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_message"})
		}

		switch payload.Type {
		case "SKIP_WAITING":
			if err := opts.Dispatcher.Dispatch(c.Context(), notify.SkipWaiting{}); err != nil {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
			}
			return c.JSON(fiber.Map{"status": "activated"})
		case "CHECK_NETWORK":
			reply := make(chan bool, 1)
			if err := opts.Dispatcher.Dispatch(c.Context(), notify.CheckNetwork{Reply: reply}); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
			}
			return c.JSON(fiber.Map{"online": <-reply})
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_message"})
		}
	})

	app.Get("/-/partitions", func(c fiber.Ctx) error {
		names, err := opts.Store.Names(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "list_failed"})
		}
		return c.JSON(fiber.Map{"partitions": names})
	})
}
