package edge

import (
	"context"
	"log/slog"
)

const (
	ActionView    = "view"
	ActionDismiss = "dismiss"

	DefaultNotificationTitle = "Digital Menu"
	DefaultNotificationBody  = "New menu items available!"

	// MenuPath is opened when the user picks the view action.
	MenuPath = "/menu"
)

// PushPayload is the JSON body of a push message.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

type NotificationData struct {
	DateOfArrival int64 `json:"dateOfArrival"`
	PrimaryKey    int64 `json:"primaryKey"`
}

// Notification is what the worker asks the host to display.
type Notification struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon,omitempty"`
	Badge   string               `json:"badge,omitempty"`
	Vibrate []int                `json:"vibrate"`
	Data    NotificationData     `json:"data"`
	Actions []NotificationAction `json:"actions"`
}

// Notifier displays system notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// Clients controls the pages served through the worker.
type Clients interface {

	// Claim takes control of every open page.
	Claim(ctx context.Context) error

	// OpenWindow opens or focuses the page at path.
	OpenWindow(ctx context.Context, path string) error
}

// LogNotifier writes notifications to a logger. It is the default for
// hosts with no display.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Show(ctx context.Context, note Notification) error {
	n.Logger.LogAttrs(ctx, slog.LevelInfo, "notification",
		slog.String("title", note.Title),
		slog.String("body", note.Body),
		slog.Int64("primary_key", note.Data.PrimaryKey),
	)
	return nil
}

// LogClients logs client control requests.
type LogClients struct {
	Logger *slog.Logger
}

func (c LogClients) Claim(ctx context.Context) error {
	c.Logger.LogAttrs(ctx, slog.LevelDebug, "claimed clients")
	return nil
}

func (c LogClients) OpenWindow(ctx context.Context, path string) error {
	c.Logger.LogAttrs(ctx, slog.LevelInfo, "open window", slog.String("path", path))
	return nil
}
