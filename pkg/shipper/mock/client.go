// Package mock provides a mock shipper implementation for testing.
package mock

import (
	"context"
	"sync/atomic"

	"github.com/tournevent/shipping/pkg/shipper"
)

// Client is a mock shipper for testing.
type Client struct {
	name  string
	calls atomic.Int64

	// OnGetQuote overrides the default quote when set.
	OnGetQuote func(ctx context.Context, req *shipper.QuoteRequest) (*shipper.Result, error)
}

// New creates a new mock shipper.
func New(name string) *Client {
	return &Client{name: name}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// Calls returns how many quotes were requested.
func (c *Client) Calls() int {
	return int(c.calls.Load())
}

// GetQuote returns mock shipping options, projected to the requested fields.
func (c *Client) GetQuote(ctx context.Context, req *shipper.QuoteRequest) (*shipper.Result, error) {
	c.calls.Add(1)
	if c.OnGetQuote != nil {
		return c.OnGetQuote(ctx, req)
	}

	options := []shipper.ShippingOption{
		{"id": c.name + "-standard", "name": "Standard", "price": 19.9},
		{"id": c.name + "-express", "name": "Express", "price": 34.9},
	}
	return shipper.Success(shipper.Project(options, req.Fields, shipper.MissingAsNull)), nil
}

var _ shipper.Shipper = (*Client)(nil)
