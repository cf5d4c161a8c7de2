package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// Notification endpoint paths.
const (
	PathNotifications        = "/api/v1/provider/notifications"
	PathNotificationsReadAll = "/api/v1/provider/notifications/read-all"
)

// Notifications lists the current user's notifications. The backend may wrap
// the list as {"notifications": [...]}.
func (c *Client) Notifications(ctx context.Context) ([]models.NotificationMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, PathNotifications, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}

	list := gjson.ParseBytes(body)
	if !list.IsArray() {
		list = list.Get("notifications")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("unexpected notifications payload")
	}
	var out []models.NotificationMessage
	if err := json.Unmarshal([]byte(list.Raw), &out); err != nil {
		return nil, fmt.Errorf("parse notifications: %w", err)
	}
	return out, nil
}

// MarkAllNotificationsRead marks every notification as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, PathNotificationsReadAll, nil, nil)
}
