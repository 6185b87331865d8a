// Package busconsumer drives the RabbitMQ consume loop: it decodes and
// validates each bus message, dispatches it to a bounded pool of scan
// workers, and acks/rejects according to spec §7's error-kind table.
// Grounded on original_source/worker/worker.py's Consumer.consume
// (prefetch-count-as-backpressure, per-message callback) translated to
// github.com/rabbitmq/amqp091-go, with the callback's single inline
// browser.load replaced by a bounded goroutine pool sized max_tabs.
package busconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/desoul99/project-fish/internal/retry"
	"github.com/desoul99/project-fish/internal/scanmodel"
)

// ScanHandler runs one scan to completion. Implemented by a thin adapter
// around orchestrator.Orchestrator.Run in production.
type ScanHandler interface {
	Handle(ctx context.Context, req scanmodel.ScanRequest) error
}

// Config carries connection parameters and worker-pool sizing.
type Config struct {
	URL        string
	Queue      string
	MaxWorkers int

	ConnectRetryAttempts int
	ConnectRetryDelaySec int
}

// Consumer pulls ScanRequest messages off Queue and runs them through
// Handler, bounded to MaxWorkers concurrent scans (spec §5 "outer pool").
type Consumer struct {
	cfg     Config
	handler ScanHandler
	logger  *slog.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

// New constructs a Consumer. A non-positive MaxWorkers falls back to 1.
func New(cfg Config, handler ScanHandler, logger *slog.Logger) *Consumer {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, handler: handler, logger: logger}
}

// Connect dials the broker with a fixed-attempt retry policy (spec §7 kind 2
// "transient infra ... 5 attempts, 5s then fail hard") and declares the
// queue. Must be called once before Run.
func (c *Consumer) Connect(ctx context.Context) error {
	attempts := c.cfg.ConnectRetryAttempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := c.cfg.ConnectRetryDelaySec
	if delay <= 0 {
		delay = 5
	}

	err := retry.Fixed(ctx, attempts, secondsToDuration(delay), func() error {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			return fmt.Errorf("busconsumer: dial: %w", err)
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return fmt.Errorf("busconsumer: open channel: %w", err)
		}

		if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("busconsumer: declare queue: %w", err)
		}

		if err := ch.Qos(c.cfg.MaxWorkers, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("busconsumer: set qos: %w", err)
		}

		c.conn = conn
		c.ch = ch
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run consumes deliveries until ctx is cancelled, dispatching each to the
// bounded worker pool. Blocks until the delivery channel closes or ctx is
// done.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("busconsumer: consume: %w", err)
	}

	sem := make(chan struct{}, c.cfg.MaxWorkers)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				wg.Wait()
				return nil
			}

			req, err := decodeAndValidate(d.Body)
			if err != nil {
				c.logger.Warn("rejecting malformed scan request", "error", err)
				_ = d.Reject(false)
				continue
			}

			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery, req scanmodel.ScanRequest) {
				defer wg.Done()
				defer func() { <-sem }()
				c.dispatch(ctx, d, req)
			}(d, req)
		}
	}
}

// dispatch runs one scan and acks/rejects per spec §7: success → ack,
// a handler error wrapping scanmodel.ErrValidation (kind 1, e.g. an unknown
// emulation device) → reject-no-requeue since retrying can never succeed,
// any other handler error (kind 3, transient/processing) → reject-requeue,
// handler panic → reject-requeue (a worker crash must never silently drop
// a message).
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, req scanmodel.ScanRequest) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("scan worker panicked, requeueing", "panic", r, "url", req.URL)
			_ = d.Reject(true)
		}
	}()

	if err := c.handler.Handle(ctx, req); err != nil {
		if errors.Is(err, scanmodel.ErrValidation) {
			c.logger.Error("rejecting invalid scan request, not requeueing", "error", err, "url", req.URL)
			_ = d.Reject(false)
			return
		}
		c.logger.Error("scan failed, requeueing", "error", err, "url", req.URL)
		_ = d.Reject(true)
		return
	}

	_ = d.Ack(false)
}

// busMessage is the wire shape of a bus message (spec §6).
type busMessage struct {
	URL             string            `json:"url"`
	EmulationDevice string            `json:"emulation_device"`
	Proxy           string            `json:"proxy"`
	PageCookies     []busMessageCookie `json:"page_cookies"`
}

type busMessageCookie struct {
	Name   string            `json:"name"`
	Value  string            `json:"value"`
	Domain string            `json:"domain"`
	Path   string            `json:"path"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// decodeAndValidate decodes the bus message JSON and validates it per spec
// §3's ScanRequest normalisation/validation rules. It does not resolve the
// emulation device name — that validation happens inside the orchestrator,
// closer to the registry, and is likewise a reject-no-requeue condition.
func decodeAndValidate(body []byte) (scanmodel.ScanRequest, error) {
	var msg busMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return scanmodel.ScanRequest{}, fmt.Errorf("busconsumer: decode message: %w", err)
	}

	if strings.TrimSpace(msg.URL) == "" {
		return scanmodel.ScanRequest{}, fmt.Errorf("busconsumer: url is required")
	}

	normalized := msg.URL
	if !strings.Contains(normalized, "://") {
		normalized = "https://" + normalized
	}
	if _, err := url.Parse(normalized); err != nil {
		return scanmodel.ScanRequest{}, fmt.Errorf("busconsumer: invalid url %q: %w", msg.URL, err)
	}

	cookies := make([]scanmodel.Cookie, 0, len(msg.PageCookies))
	for _, c := range msg.PageCookies {
		cookies = append(cookies, scanmodel.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			Attrs:  c.Attrs,
		})
	}

	return scanmodel.ScanRequest{
		URL:             normalized,
		EmulationDevice: msg.EmulationDevice,
		Proxy:           msg.Proxy,
		PageCookies:     cookies,
	}, nil
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
