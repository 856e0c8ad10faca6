// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

// Package fitsyncclient is a minimal Go client for the fitsync push/changes
// API. It handles bearer-token injection, batch push, and changes-feed
// paging; operation queueing stays with the caller.
package fitsyncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/FitGenius/FitGenius-sub001/fitsync"
)

// Client talks to a fitsync server.
type Client struct {
	BaseURL string
	Token   func(ctx context.Context) (string, error) // returns a JWT
	HTTP    *http.Client
}

// New creates a client. token is called per request so callers can refresh.
func New(baseURL string, token func(ctx context.Context) (string, error)) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    http.DefaultClient,
	}
}

// Push submits a batch of operations and returns the three-way partition.
func (c *Client) Push(ctx context.Context, ops []fitsync.SyncOperation) (*fitsync.PushResponse, error) {
	body, err := json.Marshal(fitsync.PushRequest{Operations: ops})
	if err != nil {
		return nil, fmt.Errorf("encode push request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/sync/push", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp fitsync.PushResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Changes fetches one page of the tenant change feed.
func (c *Client) Changes(ctx context.Context, after int64, limit int) (*fitsync.ChangesResponse, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/sync/changes?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp fitsync.ChangesResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AllChanges pages through the feed from after until no more remain.
func (c *Client) AllChanges(ctx context.Context, after int64, pageSize int) ([]fitsync.ChangeDownload, error) {
	var all []fitsync.ChangeDownload
	for {
		page, err := c.Changes(ctx, after, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Changes...)
		if !page.HasMore {
			return all, nil
		}
		after = page.NextAfter
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	token, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr fitsync.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: apiErr.Error, Issues: apiErr.Issues}
		}
		return &APIError{Status: resp.StatusCode, Message: resp.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is a non-200 response from the server.
type APIError struct {
	Status  int
	Message string
	Issues  []fitsync.ValidationIssue
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}
