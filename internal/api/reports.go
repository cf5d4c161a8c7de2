package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ReportDownloadPath returns the download path for report id.
func ReportDownloadPath(id string) string {
	return "/api/v1/reports/" + url.PathEscape(id) + "/download"
}

// DownloadReport streams the report document into w and returns the bytes written.
func (c *Client) DownloadReport(ctx context.Context, id string, w io.Writer) (int64, error) {
	if id == "" {
		return 0, fmt.Errorf("report id is empty")
	}
	req, err := c.newRequest(ctx, http.MethodGet, ReportDownloadPath(id), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/pdf")
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download report %s: %w", id, err)
	}
	return n, nil
}
