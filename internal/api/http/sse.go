package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-heatmap/internal/job"
)

const keepaliveInterval = 30 * time.Second

// streamEvents serves job messages as Server-Sent Events. The progress of the
// current job is replayed first so a late client can catch up.
func streamEvents(ctrl *job.Controller) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		clientID := c.Get("X-Client-Id")
		if clientID == "" {
			clientID = uuid.NewString()
		}

		messages, replay := ctrl.Follow(clientID)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer ctrl.Unsubscribe(clientID, messages)

			var seq int64
			send := func(m job.Message) error {
				seq++
				if err := writeEvent(w, seq, m); err != nil {
					return err
				}
				return w.Flush()
			}

			for _, m := range replay {
				if err := send(m); err != nil {
					return
				}
			}

			keepalive := time.NewTicker(keepaliveInterval)
			defer keepalive.Stop()

			for {
				select {
				case m, ok := <-messages:
					if !ok {
						return
					}
					if err := send(m); err != nil {
						log.Printf("sse: client %s gone: %v", clientID, err)
						return
					}
				case <-keepalive.C:
					if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		}))
		return nil
	}
}

// eventName maps a job message to its SSE event type.
func eventName(m job.Message) string {
	switch m.(type) {
	case job.ProgressMessage:
		return "progress"
	case job.ResultMessage:
		return "result"
	case job.ErrorMessage:
		return "error"
	default:
		return "message"
	}
}

// writeEvent writes a message in SSE format.
func writeEvent(w *bufio.Writer, id int64, m job.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshaling SSE data: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, eventName(m), data)
	return err
}
