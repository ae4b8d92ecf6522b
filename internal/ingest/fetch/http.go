package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/catalogsync/internal/config"
)

type HTTPTransport struct {
	client *resty.Client
}

func NewHTTPTransport() *HTTPTransport {
	return NewHTTPTransportWithClient(resty.New().SetHeader("User-Agent", "catalogsync/1.0"))
}

func NewHTTPTransportWithClient(client *resty.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

// Fetch performs one GET. Any non-2xx status is returned as a retryable error.
func (t *HTTPTransport) Fetch(ctx context.Context, cfg config.FetchConfig) (*Payload, error) {
	target, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || target.Host == "" || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, fmt.Errorf("%w: url must be absolute http(s)", ErrInvalidDescriptor)
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(cfg.Params).
		SetHeaders(cfg.Headers).
		Get(target.String())
	if err != nil {
		// url.Error carries the query string, which holds credentials.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, fmt.Errorf("http %s: %w", strings.ToLower(uerr.Op), uerr.Err)
		}
		return nil, fmt.Errorf("http get: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}

	return &Payload{
		Data: resp.Body(),
		Ext:  extension(resp.Header().Get("Content-Type"), target.Path),
	}, nil
}

func extension(contentType, urlPath string) string {
	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "xml"):
		return "xml"
	case strings.Contains(contentType, "zip"):
		return "zip"
	case strings.Contains(contentType, "csv"):
		return "csv"
	}
	if ext := strings.TrimPrefix(path.Ext(urlPath), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return "bin"
}
