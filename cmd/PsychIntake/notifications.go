package main

import (
	"context"
	"flag"
	"fmt"
	"sync"

	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/notify"
)

func runNotifications(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("notifications", flag.ContinueOnError)
	fs.SetOutput(a.out)
	markAll := fs.Bool("mark-all-read", false, "mark every notification read, then exit")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	token, err := a.store.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("%w: run signin first", models.ErrNotAuthenticated)
	}
	url, err := notify.SocketURL(a.cfg.APIBaseURL, a.cfg.WSURL, token)
	if err != nil {
		return err
	}

	ch := notify.NewChannel(url,
		notify.WithRetryPolicy(a.cfg.ReconnectPolicy()),
		notify.WithHeartbeatInterval(a.cfg.HeartbeatInterval),
	)
	defer ch.Shutdown()
	inbox := notify.NewInbox(ch, ch, a.client)
	defer inbox.Close()

	if err := inbox.Load(ctx); err != nil {
		a.printf("! could not load earlier notifications: %v\n", err)
	} else {
		items := inbox.Items()
		a.printf("%d notifications, %d unread.\n", len(items), inbox.Unread())
		for _, n := range items {
			a.printNotification(n)
		}
	}
	if *markAll {
		if err := inbox.MarkAllRead(ctx); err != nil {
			return err
		}
		a.printf("All notifications marked read.\n")
		return nil
	}

	var once sync.Once
	gaveUp := make(chan struct{})
	inbox.OnChange(a.printNotification)
	ch.Subscribe(notify.EventConnected, func(models.NotificationMessage) {
		a.printf("-- connected, waiting for notifications (Ctrl-C to stop)\n")
	})
	ch.Subscribe(notify.EventDisconnected, func(models.NotificationMessage) {
		a.printf("-- disconnected\n")
	})
	ch.Subscribe(notify.EventMaxReconnect, func(models.NotificationMessage) {
		once.Do(func() { close(gaveUp) })
	})

	// A failed first dial is retried by the channel itself.
	if err := ch.Connect(ctx); err != nil {
		a.printf("-- could not connect, retrying: %v\n", err)
	}

	select {
	case <-ctx.Done():
		return nil
	case <-gaveUp:
		return fmt.Errorf("gave up reconnecting after %d attempts", a.cfg.ReconnectAttempts)
	}
}

func (a *app) printNotification(n models.NotificationMessage) {
	mark := " "
	if !n.IsRead {
		mark = "*"
	}
	at := n.CreatedAt
	if at.IsZero() {
		at = n.Timestamp
	}
	when := ""
	if !at.IsZero() {
		when = at.Local().Format(displayTime) + " "
	}
	title := n.Title
	if title == "" {
		title = n.Type
	}
	priority := ""
	if n.Priority != "" {
		priority = " [" + string(n.Priority) + "]"
	}
	a.printf("%s %s%s%s: %s\n", mark, when, title, priority, n.Message)
}
