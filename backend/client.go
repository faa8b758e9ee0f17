// Package backend is a REST client for the learning-path backend, used for
// full graph refreshes outside the event stream.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/sprout/am"
	"github.com/teranos/sprout/errors"
	"github.com/teranos/sprout/graph"
	"github.com/teranos/sprout/internal/httpclient"
	"github.com/teranos/sprout/internal/util"
	"github.com/teranos/sprout/logger"
	"github.com/teranos/sprout/version"
	"go.uber.org/zap"
)

const maxErrorBody = 64 * 1024

// APIError is returned for non-success responses
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// Branch groups one root and its descendants
type Branch struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UserID    string `json:"userId"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// DependencyEdge is an edge row as stored by the backend
type DependencyEdge struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"sourceNodeId"`
	TargetNodeID string `json:"targetNodeId"`
	CreatedAt    string `json:"createdAt"`
}

// Edge converts the row to a graph edge
func (d DependencyEdge) Edge() graph.Edge {
	return graph.Edge{Source: d.SourceNodeID, Target: d.TargetNodeID}
}

// NodeFilter narrows ListNodes. Empty fields are not sent.
type NodeFilter struct {
	UserID   string
	Kind     graph.Kind
	BranchID string
	ParentID string
}

func (f NodeFilter) query() url.Values {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("userId", f.UserID)
	}
	if f.Kind != "" {
		q.Set("type", string(f.Kind))
	}
	if f.BranchID != "" {
		q.Set("branchId", f.BranchID)
	}
	if f.ParentID != "" {
		q.Set("parentId", f.ParentID)
	}
	return q
}

// Client talks to the backend REST API
type Client struct {
	baseURL string
	http    *httpclient.SaferClient
	log     *zap.SugaredLogger
}

// NewClient creates a client rooted at baseURL (e.g. "http://localhost:8000/backend-api")
func NewClient(baseURL string, httpClient *httpclient.SaferClient) *Client {
	if httpClient == nil {
		httpClient = httpclient.New(httpclient.Options{Timeout: am.DefaultBackendTimeoutSeconds * time.Second})
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     logger.ComponentLogger("backend"),
	}
}

// NewClientFromConfig creates a client from configuration. Private hosts
// follow the stream setting since both usually live on the same machine.
func NewClientFromConfig(cfg *am.Config) *Client {
	client := httpclient.New(httpclient.Options{
		Timeout:        time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		BlockPrivateIP: util.Ptr(!cfg.Stream.AllowPrivateHosts),
	})
	return NewClient(cfg.Backend.BaseURL, client)
}

// ListBranches returns the branches owned by userID
func (c *Client) ListBranches(ctx context.Context, userID string) ([]Branch, error) {
	var branches []Branch
	err := c.get(ctx, "/api/branches", url.Values{"userId": {userID}}, &branches)
	return branches, err
}

// ListNodes returns nodes matching filter
func (c *Client) ListNodes(ctx context.Context, filter NodeFilter) ([]graph.Node, error) {
	var nodes []graph.Node
	err := c.get(ctx, "/api/nodes", filter.query(), &nodes)
	return nodes, err
}

// ListProgress returns every progress record for userID
func (c *Client) ListProgress(ctx context.Context, userID string) ([]graph.Progress, error) {
	var progress []graph.Progress
	err := c.get(ctx, "/api/progress", url.Values{"userId": {userID}}, &progress)
	return progress, err
}

// ListDependencyEdges returns the dependency edges among the children of
// parentID. childType may be empty to return edges for every child kind.
func (c *Client) ListDependencyEdges(ctx context.Context, parentID string, childType graph.Kind) ([]DependencyEdge, error) {
	q := url.Values{}
	if childType != "" {
		q.Set("childType", string(childType))
	}
	var edges []DependencyEdge
	err := c.get(ctx, "/api/nodes/"+url.PathEscape(parentID)+"/dependency-edges", q, &edges)
	return edges, err
}

// get issues a GET and decodes the JSON body into out. 204 leaves out untouched.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.Get().UserAgent())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	fields := []interface{}{
		logger.FieldMethod, http.MethodGet,
		logger.FieldPath, path,
		logger.FieldStatus, resp.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	}
	c.log.Debugw("Backend request", append(fields, logger.FieldsFromContext(ctx)...)...)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", path)
	}
	return nil
}

func apiError(resp *http.Response) error {
	message := fmt.Sprintf("request failed (%d)", resp.StatusCode)

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		message = body.Error
	}

	var err error = &APIError{StatusCode: resp.StatusCode, Message: message}
	if resp.StatusCode == http.StatusNotFound {
		err = errors.Mark(err, errors.ErrNotFound)
	}
	return err
}
