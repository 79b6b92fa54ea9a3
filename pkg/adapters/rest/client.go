package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/aretw0/strata/pkg/core"
)

// Config configures a Driver.
type Config struct {
	// BaseURL is the root the server routes hang off, e.g. "http://localhost:8080/api".
	BaseURL string
	// Name identifies the driver in logs.
	Name       string
	HTTPClient *http.Client
	Headers    http.Header
	Logger     *slog.Logger
	// Features declares what the remote side supports. Nil enables everything.
	Features core.Features
	// Timeout applies to clients created by the driver. Defaults to 30s.
	Timeout time.Duration
}

// Driver is a core.Driver backed by a remote Handler.
type Driver struct {
	base   *url.URL
	config Config
	client *http.Client
}

// NewDriver creates a driver talking to the server at config.BaseURL.
func NewDriver(config Config) (*Driver, error) {
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", config.BaseURL)
	}
	if config.Name == "" {
		config.Name = "rest"
	}
	if config.Features == nil {
		config.Features = core.AllFeatures()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &Driver{base: base, config: config, client: client}, nil
}

// Features implements core.Driver.
func (d *Driver) Features() core.Features {
	return d.config.Features
}

// Index implements core.Driver.
func (d *Driver) Index(ctx context.Context, m *core.Model, opts core.DriverOptions) (core.IndexResult, error) {
	var out indexPayload
	if err := d.do(ctx, http.MethodGet, d.path(m.Entity), opts, nil, &out); err != nil {
		return core.IndexResult{}, err
	}
	if out.Records == nil {
		out.Records = []core.Record{}
	}
	return core.IndexResult{Records: out.Records, Pagination: out.Pagination}, nil
}

// Find implements core.Driver.
func (d *Driver) Find(ctx context.Context, m *core.Model, id string, opts core.DriverOptions) (core.Record, error) {
	var out recordPayload
	if err := d.do(ctx, http.MethodGet, d.path(m.Entity, id), opts, nil, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

// Create implements core.Driver.
func (d *Driver) Create(ctx context.Context, m *core.Model, form core.Form, opts core.DriverOptions) (core.Record, error) {
	var out recordPayload
	if err := d.do(ctx, http.MethodPost, d.path(m.Entity), opts, form, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

// Update implements core.Driver.
func (d *Driver) Update(ctx context.Context, m *core.Model, id string, form core.Form, opts core.DriverOptions) (core.Record, error) {
	var out recordPayload
	if err := d.do(ctx, http.MethodPatch, d.path(m.Entity, id), opts, form, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

// Destroy implements core.Driver.
func (d *Driver) Destroy(ctx context.Context, m *core.Model, id string, opts core.DriverOptions) (core.Record, error) {
	var out recordPayload
	if err := d.do(ctx, http.MethodDelete, d.path(m.Entity, id), opts, nil, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

// BulkUpdate implements core.Driver.
func (d *Driver) BulkUpdate(ctx context.Context, m *core.Model, forms map[string]core.Form, opts core.DriverOptions) ([]core.Record, error) {
	var out recordsPayload
	if err := d.do(ctx, http.MethodPatch, d.path(m.Entity), opts, forms, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Sync implements core.Driver.
func (d *Driver) Sync(ctx context.Context, m *core.Model, id, relation string, forms map[string]core.Form, opts core.DriverOptions) (core.SyncResult, error) {
	var out core.SyncResult
	req := syncRequest{Forms: forms, WithoutDetaching: opts.WithoutDetaching}
	if err := d.do(ctx, http.MethodPost, d.path(m.Entity, id, relation, "sync"), core.DriverOptions{}, req, &out); err != nil {
		return core.SyncResult{}, err
	}
	return out, nil
}

func (d *Driver) path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

// do sends one request and decodes a successful body into out.
func (d *Driver) do(ctx context.Context, method, path string, opts core.DriverOptions, body, out any) error {
	q, err := encodeQuery(opts)
	if err != nil {
		return err
	}
	u := *d.base
	u.RawPath = d.base.EscapedPath() + "/" + path
	u.Path, _ = url.PathUnescape(u.RawPath)
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	for k, v := range d.config.Headers {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if d.config.Logger != nil {
		d.config.Logger.Debug("remote call", "driver", d.config.Name, "method", method, "url", u.String())
	}
	res, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &core.DriverError{Name: core.ErrorStandard, Message: err.Error(), Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return parseError(res.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ core.Driver = (*Driver)(nil)
