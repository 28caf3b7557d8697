package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the backend origin, e.g. https://api.example.com.
	BaseURL string

	// HTTPClient is optional. When nil a client with a cookie jar is created so the
	// session cookie travels with every request.
	HTTPClient *http.Client
	Timeout    time.Duration

	// OnUnauthorized runs on every 401 from an authenticated endpoint.
	// The console uses it to drop the session and route to login.
	OnUnauthorized func()

	Logger *slog.Logger
}

// Client is the single point of contact with the backend HTTP surface.
// It holds no cached resource state.
type Client struct {
	base           *url.URL
	hc             *http.Client
	onUnauthorized func()
	log            *slog.Logger
	validate       *validator.Validate
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("gateway: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid base url: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Jar: jar, Timeout: timeout}
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		base:           base,
		hc:             hc,
		onUnauthorized: opts.OnUnauthorized,
		log:            log.With("component", "gateway"),
		validate:       newValidator(),
	}, nil
}

// SetOnUnauthorized replaces the 401 hook. It must be called before the client is shared.
func (c *Client) SetOnUnauthorized(fn func()) { c.onUnauthorized = fn }

// BaseURL returns the resolved backend origin.
func (c *Client) BaseURL() string { return c.base.String() }

type requestOpts struct {
	// public endpoints report 401 as an APIError instead of a session expiry.
	public bool
	query  url.Values
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// doJSON sends in (if non-nil) as JSON and decodes the response into out (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, ro requestOpts) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, ro.query), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, path, out, ro)
}

// filePart is one file field of a multipart request.
type filePart struct {
	Field    string
	FileName string
	Content  io.Reader
}

func (c *Client) doMultipart(ctx context.Context, method, path string, fields map[string]string, files []filePart, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.Field, f.FileName)
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, f.Content); err != nil {
			return fmt.Errorf("gateway: read %s: %w", f.FileName, err)
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, nil), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, path, out, requestOpts{})
}

func (c *Client) send(req *http.Request, path string, out any, ro requestOpts) error {
	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("request",
		"method", req.Method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := c.checkStatus(resp, req.Method, path, ro); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode %s %s: %w", req.Method, path, err)
	}
	return nil
}

func (c *Client) checkStatus(resp *http.Response, method, path string, ro requestOpts) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized && !ro.public {
		_, _ = io.Copy(io.Discard, resp.Body)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrSessionExpired
	}
	return &APIError{
		Status:  resp.StatusCode,
		Method:  method,
		Path:    path,
		Message: readErrorMessage(resp.Body),
	}
}

// readErrorMessage extracts "message", then "error", from a JSON error body.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	switch v := body.Error.(type) {
	case string:
		return v
	case map[string]any:
		if m, ok := v["message"].(string); ok {
			return m
		}
	}
	return ""
}

func (c *Client) check(v any) error {
	if err := c.validate.Struct(v); err != nil {
		return newValidationError(err)
	}
	return nil
}

func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Fields: map[string]string{field: "is required"}}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("filename_ext", func(fl validator.FieldLevel) bool {
		name := strings.ToLower(fl.Field().String())
		for _, ext := range strings.Split(fl.Param(), " ") {
			if strings.HasSuffix(name, "."+ext) {
				return true
			}
		}
		return false
	})
	return v
}
