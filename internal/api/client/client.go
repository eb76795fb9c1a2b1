// Package client is the Go client of the admin API, used by the CLI subcommands.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tphakala/syncbridge/internal/api"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/httpclient"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/migration"
)

const (
	migrationsPath = "/api/v1/migrations"

	// DefaultTimeout bounds one admin call.
	DefaultTimeout = 30 * time.Second
)

// Client calls the admin API of a running syncbridge instance.
type Client struct {
	http *httpclient.Client
}

// New returns a client for the admin API at baseURL.
func New(baseURL string, timeout time.Duration, log logger.Logger, opts ...httpclient.Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{http: httpclient.New(httpclient.Config{
		Name:       "admin-api",
		BaseURL:    baseURL,
		Timeout:    timeout,
		RetryCount: 2,
	}, log, opts...)}
}

// Start starts a migration of domain. An empty filter migrates everything.
func (c *Client) Start(ctx context.Context, domain string, filter map[string]string) (string, error) {
	var body any
	if len(filter) > 0 {
		body = filter
	}
	var out api.StartResponse
	if err := c.do(ctx, httpclient.Request{
		Method:     http.MethodPost,
		Path:       migrationsPath + "/{domain}/start",
		PathParams: map[string]string{"domain": domain},
		Body:       body,
		Result:     &out,
	}); err != nil {
		return "", err
	}
	return out.MigrationID, nil
}

// History lists migrations matching q.
func (c *Client) History(ctx context.Context, q migration.HistoryQuery) ([]migration.History, error) {
	query := map[string]string{}
	if q.MigrationID != "" {
		query["migrationId"] = q.MigrationID
	}
	if q.DomainType != "" {
		query["domain"] = q.DomainType
	}
	if q.Status != "" {
		query["status"] = string(q.Status)
	}
	if q.Limit > 0 {
		query["limit"] = fmt.Sprint(q.Limit)
	}

	var out []migration.History
	if err := c.do(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   migrationsPath + "/history",
		Query:  query,
		Result: &out,
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Migration returns one history row.
func (c *Client) Migration(ctx context.Context, migrationID string) (*migration.History, error) {
	var out migration.History
	if err := c.do(ctx, httpclient.Request{
		Method:     http.MethodGet,
		Path:       migrationsPath + "/history/{id}",
		PathParams: map[string]string{"id": migrationID},
		Result:     &out,
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel requests cancellation of a running migration.
func (c *Client) Cancel(ctx context.Context, migrationID string) error {
	return c.do(ctx, httpclient.Request{
		Method:     http.MethodPost,
		Path:       migrationsPath + "/{id}/cancel",
		PathParams: map[string]string{"id": migrationID},
	})
}

// Repair synchronises one entity of domain.
func (c *Client) Repair(ctx context.Context, domain, key string) (migration.Outcome, error) {
	var out api.RepairResponse
	if err := c.do(ctx, httpclient.Request{
		Method:     http.MethodPost,
		Path:       migrationsPath + "/{domain}/repair/{key}",
		PathParams: map[string]string{"domain": domain, "key": key},
		Result:     &out,
	}); err != nil {
		return "", err
	}
	return out.Outcome, nil
}

// DeadLetters lists dead letters of domain, optionally of one migration.
func (c *Client) DeadLetters(ctx context.Context, domain, migrationID string) ([]migration.DeadLetter, error) {
	var out api.DeadLettersResponse
	if err := c.do(ctx, httpclient.Request{
		Method:     http.MethodGet,
		Path:       migrationsPath + "/{domain}/dead-letters",
		PathParams: map[string]string{"domain": domain},
		Query:      migrationQuery(migrationID),
		Result:     &out,
	}); err != nil {
		return nil, err
	}
	return out.DeadLetters, nil
}

// Redrive requeues dead letters of domain and returns how many moved.
func (c *Client) Redrive(ctx context.Context, domain, migrationID string) (int, error) {
	var out api.RedriveResponse
	if err := c.do(ctx, httpclient.Request{
		Method:     http.MethodPost,
		Path:       migrationsPath + "/{domain}/dead-letters/redrive",
		PathParams: map[string]string{"domain": domain},
		Query:      migrationQuery(migrationID),
		Result:     &out,
	}); err != nil {
		return 0, err
	}
	return out.Redriven, nil
}

func migrationQuery(migrationID string) map[string]string {
	if migrationID == "" {
		return nil
	}
	return map[string]string{"migrationId": migrationID}
}

// do performs req and replaces the transport error with the server's message
// when the API answered with an error body. The category is kept.
func (c *Client) do(ctx context.Context, req httpclient.Request) error {
	resp, err := c.http.Do(ctx, req)
	if err == nil {
		return nil
	}
	if resp == nil {
		return err
	}
	var body api.ErrorResponse
	if jerr := json.Unmarshal(resp.Body, &body); jerr != nil || body.Message == "" {
		return err
	}
	return errors.New(fmt.Errorf("%s (%s): %w", body.Message, body.Error, err)).
		Component("apiclient").
		Context("correlation_id", body.CorrelationID).
		Build()
}
