// Package catalog implements the catalog.Client port over the catalog
// service's REST API.
package catalog

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/promo-pricing/internal/domain/catalog"
	"github.com/xenking/promo-pricing/internal/jsonx"
)

// TenantHeader carries the tenant on catalog requests.
const TenantHeader = "X-Tenant-Id"

const maxBodySize = 1 << 20

var _ catalog.Client = (*Client)(nil)

// Options configures a Client.
type Options struct {
	// Timeout bounds every lookup. Defaults to 3s.
	Timeout        time.Duration
	TracerProvider trace.TracerProvider
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Client fetches product prices from the catalog service. Concurrent lookups
// of the same tenant and product share one request.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	group   singleflight.Group
}

// New creates a Client for the catalog service at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, errors.Wrap(err, "parse catalog url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("catalog url %q must be absolute", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	var otelOpts []otelhttp.Option
	if opts.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}

	return &Client{
		base:    u,
		timeout: opts.Timeout,
		http: &http.Client{
			Transport: otelhttp.NewTransport(opts.Transport, otelOpts...),
		},
	}, nil
}

// GetProduct returns the product's unit price. A 404 yields
// catalog.ErrNotFound; every other failure, timeouts included, yields a
// *catalog.UnavailableError.
func (c *Client) GetProduct(ctx context.Context, tenantID, productID string) (*catalog.Product, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, catalog.ErrNotFound
	}

	key := tenantID + "/" + productID
	ch := c.group.DoChan(key, func() (any, error) {
		// Detached from the first caller's cancellation; the timeout still
		// bounds the shared request.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(fetchCtx, tenantID, productID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, &catalog.UnavailableError{Err: errors.Wrap(ctx.Err(), "wait for lookup")}
	case res = <-ch:
	}
	if res.Shared {
		zctx.From(ctx).Debug("Catalog lookup shared", zap.String("product_id", productID))
	}
	if res.Err != nil {
		return nil, res.Err
	}
	p := *res.Val.(*catalog.Product)
	return &p, nil
}

func (c *Client) fetch(ctx context.Context, tenantID, productID string) (*catalog.Product, error) {
	u := c.base.JoinPath("api", "v1", "product", productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &catalog.UnavailableError{Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Accept", "application/json")
	if tenantID != "" {
		req.Header.Set(TenantHeader, tenantID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &catalog.UnavailableError{Err: errors.Wrap(err, "do request")}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, catalog.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &catalog.UnavailableError{Err: errors.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &catalog.UnavailableError{Err: errors.Wrap(err, "read body")}
	}

	p, err := decodeProduct(body)
	if err != nil {
		return nil, err
	}
	p.ID = productID
	return p, nil
}

// decodeProduct reads the price and currency out of the catalog envelope
// {"success":..,"data":{"price":..,"currency":..}}. A missing data object or
// price is reported as catalog.ErrNotFound.
func decodeProduct(body []byte) (*catalog.Product, error) {
	var (
		p        catalog.Product
		hasData  bool
		hasPrice bool
	)

	d := jx.DecodeBytes(body)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "data" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		hasData = true
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "price":
				price, err := jsonx.Decimal(d)
				if err != nil {
					return errors.Wrap(err, "price")
				}
				p.Price = price
				hasPrice = true
				return nil
			case "currency":
				if d.Next() != jx.String {
					return d.Skip()
				}
				s, err := d.Str()
				if err != nil {
					return errors.Wrap(err, "currency")
				}
				p.Currency = strings.ToUpper(strings.TrimSpace(s))
				return nil
			default:
				return d.Skip()
			}
		})
	})
	if err != nil {
		return nil, &catalog.UnavailableError{Err: errors.Wrap(err, "decode product")}
	}
	if !hasData || !hasPrice {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}
