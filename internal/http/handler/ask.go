package handler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"docqa/internal/model"
	"docqa/internal/qa"
	"docqa/internal/service"
)

// SSE event names used by /ask/stream.
const (
	EventToken   = "token"
	EventSources = "sources"
	EventError   = "error"
)

type askRequest struct {
	Question string `json:"question" form:"question"`
}

// StreamResult is the payload of the final sources event.
type StreamResult struct {
	Response  string           `json:"response"`
	Sources   []string         `json:"sources"`
	Citations []model.Citation `json:"citations"`
}

func questionFrom(c *fiber.Ctx) (string, bool) {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		req.Question = c.FormValue("question")
	}
	q := strings.TrimSpace(req.Question)
	return q, q != ""
}

// Ask godoc
// @Summary Answer a question from the indexed documents
// @Tags qa
// @Accept x-www-form-urlencoded
// @Produce json
// @Param question formData string true "Question"
// @Success 200 {object} model.Answer
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /ask/ [post]
func Ask(svc service.QueryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, ok := questionFrom(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, CodeQuestionRequired, "question is required")
		}
		ans, err := svc.Ask(c.UserContext(), q)
		if err != nil {
			if errors.Is(err, qa.ErrEmptyQuestion) {
				return writeError(c, fiber.StatusBadRequest, CodeQuestionRequired, "question is required")
			}
			return writeError(c, fiber.StatusInternalServerError, CodeAskFailed, err.Error())
		}
		return c.JSON(ans)
	}
}

// AskStream godoc
// @Summary Answer a question as server-sent events
// @Description Emits "token" events while the answer is generated, then one
// @Description "sources" event with the full answer and citations, or an "error" event.
// @Tags qa
// @Accept x-www-form-urlencoded
// @Produce text/event-stream
// @Param question formData string true "Question"
// @Router /ask/stream [post]
func AskStream(svc service.QueryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, ok := questionFrom(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, CodeQuestionRequired, "question is required")
		}

		// The stream writer runs after the handler returns.
		ctx := context.WithoutCancel(c.UserContext())

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			ans, cites, err := svc.AskStream(ctx, q, func(_ context.Context, chunk []byte) error {
				if err := writeEvent(w, EventToken, fiber.Map{"text": string(chunk)}); err != nil {
					return err
				}
				return w.Flush()
			})
			if err != nil {
				_ = writeEvent(w, EventError, errorEnvelope{Code: CodeAskFailed, Message: err.Error()})
				_ = w.Flush()
				return
			}
			if cites == nil {
				cites = []model.Citation{}
			}
			_ = writeEvent(w, EventSources, StreamResult{Response: ans.Response, Sources: ans.Sources, Citations: cites})
			_ = w.Flush()
		}))
		return nil
	}
}

func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
