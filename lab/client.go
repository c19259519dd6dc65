// Package lab talks to the external compute service that generates
// neural maps, nodes and links for a resource.
package lab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/spectra-gallery/spectra-playground/models"
)

const maxResponseBytes = 1 << 20

var ErrUnknownKind = errors.New("unknown transform kind")

// StatusError is returned when the lab service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lab service returned %d: %s", e.StatusCode, e.Body)
}

type Client interface {
	Create(ctx context.Context, kind models.TransformKind, resourceId string, input json.RawMessage) (json.RawMessage, error)
}

type Options struct {
	BaseURL string
	// When ClientID is set, requests carry a bearer token obtained with the
	// OAuth2 client credentials grant.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(ctx context.Context, opts Options) (*HTTPClient, error) {
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid lab base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := &http.Client{Timeout: opts.Timeout}
	if opts.ClientID != "" {
		if opts.TokenURL == "" {
			return nil, errors.New("lab token url is required with a client id")
		}
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
		}
		client = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, client))
		client.Timeout = opts.Timeout
	}

	return &HTTPClient{baseURL: strings.TrimRight(opts.BaseURL, "/"), http: client}, nil
}

func path(kind models.TransformKind, resourceId string) (string, error) {
	switch kind {
	case models.TransformNeuralMap:
		return "/lab/neuralmap/create", nil
	case models.TransformNode:
		return "/lab/node/create/" + url.PathEscape(resourceId), nil
	case models.TransformLink:
		return "/lab/link/create/" + url.PathEscape(resourceId), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func (c *HTTPClient) Create(ctx context.Context, kind models.TransformKind, resourceId string, input json.RawMessage) (json.RawMessage, error) {
	p, err := path(kind, resourceId)
	if err != nil {
		return nil, err
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+p, bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lab request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading lab response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if !json.Valid(body) {
		return nil, errors.New("lab service returned invalid json")
	}
	return json.RawMessage(body), nil
}
