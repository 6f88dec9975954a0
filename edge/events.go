package edge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jmgilman/go/errors"
)

// Event is a message delivered to the worker by its host.
type Event interface {
	isEvent()
}

type (
	Install  struct{}
	Activate struct{}

	// Fetch asks the worker to answer a request.
	Fetch struct {
		Request *http.Request
	}

	// Sync is a background sync trigger.
	Sync struct {
		Tag string
	}

	// Push carries the raw push message data.
	Push struct {
		Payload []byte
	}

	NotificationClick struct {
		Action string
	}

	// Message is a control message posted by a page.
	Message struct {
		Type string
	}
)

func (Install) isEvent()           {}
func (Activate) isEvent()          {}
func (Fetch) isEvent()             {}
func (Sync) isEvent()              {}
func (Push) isEvent()              {}
func (NotificationClick) isEvent() {}
func (Message) isEvent()           {}

/*
Dispatch routes ev to its handler. Only Fetch produces a response; every
other event returns a nil response.
*/
func (w *Worker) Dispatch(ctx context.Context, ev Event) (*http.Response, error) {
	switch e := ev.(type) {
	case Install:
		return nil, w.Install(ctx)
	case Activate:
		return nil, w.Activate(ctx)
	case Fetch:
		if e.Request == nil {
			return nil, errors.New(errors.CodeInvalidInput, "fetch event without request")
		}
		return w.Intercept(e.Request.WithContext(ctx))
	case Sync:
		_, err := w.Sync(ctx, e.Tag)
		return nil, err
	case Push:
		return nil, w.Push(ctx, e.Payload)
	case NotificationClick:
		return nil, w.NotificationClick(ctx, e.Action)
	case Message:
		return nil, w.Message(ctx, e.Type)
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unsupported event %T", ev)
	}
}

/*
Push shows a notification for a push message. The payload is JSON
{"title", "body"}; anything that is not a JSON object is used as the body
text, and an empty payload gets the default text.
*/
func (w *Worker) Push(ctx context.Context, payload []byte) error {
	p := parsePush(payload)

	n := Notification{
		Title:   p.Title,
		Body:    p.Body,
		Icon:    w.icon,
		Badge:   w.badge,
		Vibrate: []int{100, 50, 100},
		Data: NotificationData{
			DateOfArrival: w.clock.Now().UnixMilli(),
			PrimaryKey:    w.notifySeq.Add(1),
		},
		Actions: []NotificationAction{
			{Action: ActionView, Title: "View Menu"},
			{Action: ActionDismiss, Title: "Close"},
		},
	}

	if err := w.notifier.Show(ctx, n); err != nil {
		return errors.Wrap(err, errors.CodeUnavailable, "failed to show notification")
	}
	return nil
}

func parsePush(payload []byte) PushPayload {
	p := PushPayload{Title: DefaultNotificationTitle, Body: DefaultNotificationBody}

	text := strings.TrimSpace(string(payload))
	if text == "" {
		return p
	}

	var msg PushPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.Body = text
		return p
	}
	if msg.Title != "" {
		p.Title = msg.Title
	}
	if msg.Body != "" {
		p.Body = msg.Body
	}
	return p
}

// NotificationClick opens the menu page for the view action. Other
// actions only close the notification.
func (w *Worker) NotificationClick(ctx context.Context, action string) error {
	if action != ActionView {
		w.logger.LogAttrs(ctx, slog.LevelDebug, "notification dismissed", slog.String("action", action))
		return nil
	}
	if err := w.clients.OpenWindow(ctx, MenuPath); err != nil {
		return errors.Wrap(err, errors.CodeUnavailable, "failed to open menu page")
	}
	return nil
}
