// Package httpremote implements repository.RemoteClient over the list API.
package httpremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/todosync/api/transport"
	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/repository"
)

const (
	listPath   = "/api/v1/list"
	loginPath  = "/api/v1/auth/login"
	healthPath = "/health"
)

// Config describes how to reach the server.
type Config struct {
	BaseURL  string
	Token    string
	DeviceID string
	Timeout  time.Duration
	// Dial overrides the network dialer, mainly for tests.
	Dial fasthttp.DialFunc
}

// Client talks to the list API with fasthttp.
type Client struct {
	http     *fasthttp.Client
	baseURL  string
	deviceID string
	timeout  time.Duration
	logger   *zap.Logger

	token    atomic.Value // string
	revision atomic.Int64
}

var _ repository.RemoteClient = (*Client)(nil)

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		http: &fasthttp.Client{
			Name:                "todosync",
			Dial:                cfg.Dial,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		deviceID: cfg.DeviceID,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
	c.token.Store(cfg.Token)
	return c
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.token.Store(token)
}

// Revision returns the last list revision reported by the server.
func (c *Client) Revision() int64 {
	return c.revision.Load()
}

func (c *Client) FetchList(ctx context.Context) ([]domain.Record, error) {
	var resp transport.ListResponse
	if err := c.do(ctx, fasthttp.MethodGet, listPath, nil, &resp); err != nil {
		return nil, err
	}
	return c.acceptList(resp)
}

func (c *Client) SyncList(ctx context.Context, records []domain.Record) ([]domain.Record, error) {
	body := transport.ListRequest{List: transport.FromRecords(records, c.deviceID)}
	var resp transport.ListResponse
	if err := c.do(ctx, fasthttp.MethodPatch, listPath, body, &resp); err != nil {
		return nil, err
	}
	return c.acceptList(resp)
}

func (c *Client) Create(ctx context.Context, record domain.Record) (*domain.Record, error) {
	body := transport.ElementRequest{Element: transport.FromRecord(record, c.deviceID)}
	var resp transport.ElementResponse
	if err := c.do(ctx, fasthttp.MethodPost, listPath, body, &resp); err != nil {
		return nil, err
	}
	return c.acceptElement(resp)
}

func (c *Client) Update(ctx context.Context, record domain.Record) (*domain.Record, error) {
	body := transport.ElementRequest{Element: transport.FromRecord(record, c.deviceID)}
	var resp transport.ElementResponse
	if err := c.do(ctx, fasthttp.MethodPut, listPath+"/"+record.ID.String(), body, &resp); err != nil {
		return nil, err
	}
	return c.acceptElement(resp)
}

func (c *Client) Delete(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	var resp transport.ElementResponse
	if err := c.do(ctx, fasthttp.MethodDelete, listPath+"/"+id.String(), nil, &resp); err != nil {
		return nil, err
	}
	return c.acceptElement(resp)
}

// Login registers this device for owner and stores the returned token.
func (c *Client) Login(ctx context.Context, ownerID string, ttl time.Duration) (transport.LoginResponse, error) {
	body := transport.AuthLoginRequest{OwnerID: ownerID, DeviceID: c.deviceID, TTL: int(ttl.Seconds())}
	var env struct {
		Data transport.LoginResponse `json:"data"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, loginPath, body, &env); err != nil {
		return transport.LoginResponse{}, err
	}
	c.SetToken(env.Data.Token)
	return env.Data, nil
}

// Ping reports whether the server answers its health check.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, fasthttp.MethodGet, healthPath, nil, nil)
}

func (c *Client) acceptList(resp transport.ListResponse) ([]domain.Record, error) {
	c.revision.Store(resp.Revision)
	records, err := transport.Records(resp.List)
	if err != nil {
		return nil, domain.PermanentError("server sent an invalid list", err)
	}
	return records, nil
}

func (c *Client) acceptElement(resp transport.ElementResponse) (*domain.Record, error) {
	c.revision.Store(resp.Revision)
	if resp.Element == nil {
		return nil, nil
	}
	rec, err := resp.Element.Record()
	if err != nil {
		return nil, domain.PermanentError("server sent an invalid element", err)
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	release := func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(transport.HeaderRevision, strconv.FormatInt(c.revision.Load(), 10))
	if token, _ := c.token.Load().(string); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			release()
			return domain.PermanentError("encode request", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan error, 1)
	go func() { done <- c.http.DoDeadline(req, resp, deadline) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// The request buffers stay in use until fasthttp returns.
		go func() {
			<-done
			release()
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.TransientError(method+" "+path+": timed out", ctx.Err())
		}
		return ctx.Err()
	}
	defer release()

	if err != nil {
		c.logger.Debug("remote request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return domain.TransientError(method+" "+path+": "+err.Error(), err)
	}
	return c.decode(method, path, resp, out)
}

func (c *Client) decode(method, path string, resp *fasthttp.Response, out any) error {
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		err := statusError(method, path, status, resp.Body())
		c.logger.Debug("remote request rejected", zap.String("method", method), zap.String("path", path), zap.Int("status", status))
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return domain.PermanentError(method+" "+path+": undecodable response", err)
	}
	return nil
}

// statusError classifies a non-2xx answer: 5xx is transient, the rest permanent.
func statusError(method, path string, status int, body []byte) error {
	var env transport.Envelope
	detail := ""
	if json.Unmarshal(body, &env) == nil && env.Detail() != "" {
		detail = " (" + env.Detail() + ")"
	}
	msg := fmt.Sprintf("%s %s: status %d%s", method, path, status, detail)
	if status >= 500 {
		return domain.TransientError(msg, nil)
	}
	return domain.PermanentError(msg, nil)
}
