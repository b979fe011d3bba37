package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"execgw/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

const (
	MainnetURL = "https://api.hyperliquid.xyz"
	TestnetURL = "https://api.hyperliquid-testnet.xyz"

	_exchangePath = "/exchange"
	_infoPath     = "/info"

	_defaultTimeout = 15 * time.Second
	_maxErrorBody   = 256
	// spotMeta is the largest reply and stays well below this.
	_maxResponseBody = 8 << 20
)

// Delegator is the synchronous HTTP path to the venue. It carries signed
// actions while the duplex connection is down and serves info queries.
type Delegator struct {
	client  *http.Client
	baseURL string
	maxBody int64
}

func NewDelegator(client *http.Client, baseURL string) *Delegator {
	if client == nil {
		client = &http.Client{Timeout: _defaultTimeout}
	}
	return &Delegator{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxBody: _maxResponseBody,
	}
}

// Send posts a signed action envelope and returns the raw reply body.
func (d *Delegator) Send(ctx context.Context, payload []byte) ([]byte, error) {
	return d.post(ctx, _exchangePath, payload)
}

// Info posts an info request and decodes the reply into out.
func (d *Delegator) Info(ctx context.Context, req any, out any) error {
	payload, err := sonic.ConfigFastest.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal info request")
	}
	body, err := d.post(ctx, _infoPath, payload)
	if err != nil {
		return err
	}
	if err := sonic.ConfigFastest.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s", exception.ErrOrderDecodeResponseBody, err.Error())
	}
	return nil
}

func (d *Delegator) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "new request").With("path", path)
	}
	r.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(r)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(body)) > d.maxBody {
		return nil, fmt.Errorf("%w: %s over %d bytes", exception.ErrHTTPBodyTooLarge, path, d.maxBody)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, exception.ErrOrderRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		if len(body) > _maxErrorBody {
			body = body[:_maxErrorBody]
		}
		return nil, fmt.Errorf("%w: %s %d %s", exception.ErrHTTPStatus, path, resp.StatusCode, body)
	}
	return body, nil
}
