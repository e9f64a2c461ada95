package journal

import (
	"context"
	"net/url"
	"time"
)

// ReportPreview returns the data a report over [from, to] would contain
func (c *Client) ReportPreview(ctx context.Context, from, to time.Time) (*ReportPreview, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.UTC().Format(time.RFC3339))
	}
	var out ReportPreview
	if err := c.get(ctx, "/api/reports/preview-data", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateReport logs a generated report in the user's history
func (c *Client) GenerateReport(ctx context.Context, req ReportRequest) (*ReportRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out ReportRecord
	if err := c.post(ctx, "/api/reports/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
