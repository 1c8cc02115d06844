// Package processor calls the downstream payment processors.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/akylbek/payment-system/intake-gateway/internal/models"
	"github.com/akylbek/payment-system/intake-gateway/internal/telemetry"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected processor status")
	ErrUnknownProcessor = errors.New("unknown processor")
)

type Endpoint struct {
	URL     string
	Timeout time.Duration
}

// Client posts payments to processors, each call bounded by the
// processor's own timeout.
type Client struct {
	http      *http.Client
	endpoints map[models.Processor]Endpoint
}

func NewClient(endpoints map[models.Processor]Endpoint) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        200,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoints: endpoints,
	}
}

// Pay returns nil only for a 2xx answer. Timeouts, transport errors and any
// other status are failures.
func (c *Client) Pay(ctx context.Context, processor models.Processor, job models.Job) error {
	endpoint, ok := c.endpoints[processor]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProcessor, processor)
	}

	body, err := json.Marshal(models.NewProcessorPayment(job))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, endpoint.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint.URL, "/")+"/payments", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	telemetry.ProcessorDuration.WithLabelValues(string(processor)).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ProcessorRequests.WithLabelValues(string(processor), "error").Inc()
		return fmt.Errorf("call %s processor: %w", processor, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		telemetry.ProcessorRequests.WithLabelValues(string(processor), "rejected").Inc()
		return fmt.Errorf("%w: %s processor answered %d", ErrUnexpectedStatus, processor, resp.StatusCode)
	}

	telemetry.ProcessorRequests.WithLabelValues(string(processor), "ok").Inc()
	return nil
}
