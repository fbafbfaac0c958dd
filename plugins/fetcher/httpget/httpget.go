package httpget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rxnfetch/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	TimeoutSeconds int               `yaml:"timeout_seconds"` // client 级超时（秒）；0 表示不限，仅受 ctx 约束
	UserAgent      string            `yaml:"user_agent"`      // 为空使用默认
	ExtraHeaders   map[string]string `yaml:"extra_headers"`   // 追加/覆盖请求头
}

const defaultUserAgent = "rxnfetch/1"

// Client 以单次 GET 获取归档；不重试、不校验。
type Client struct {
	hc     *http.Client
	ua     string
	extraH map[string]string
	do     func(*http.Request) (*http.Response, error)
}

// New 构造 HTTP Fetcher。
func New(opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.TimeoutSeconds < 0 {
		return nil, fmt.Errorf("fetcher http: %w: timeout_seconds must be >= 0", contract.ErrInvalidInput)
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{hc: hc, ua: ua, extraH: opts.ExtraHeaders, do: hc.Do}, nil
}

var _ contract.Fetcher = (*Client)(nil)

// Fetch 发起 GET；2xx 时返回响应体（调用方负责关闭），否则返回 statusError。
func (c *Client) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("fetcher http: %w: url %q", contract.ErrInvalidInput, rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("User-Agent", c.ua)
	for k, v := range c.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		// 读取少量响应体辅助定位
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, statusError{status: resp.StatusCode, msg: strings.TrimSpace(string(slurp))}
	}
	return resp.Body, nil
}

// statusError: 上游非 2xx；5xx/408 同时满足 net.Error，便于归类为网络问题。
type statusError struct {
	status int
	msg    string
}

var _ contract.UpstreamError = statusError{}

func (e statusError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("upstream %d %s", e.status, http.StatusText(e.status))
	}
	return fmt.Sprintf("upstream %d: %s", e.status, e.msg)
}
func (e statusError) Unwrap() error { return contract.ErrUpstreamStatus }
func (e statusError) Timeout() bool { return e.status == http.StatusRequestTimeout }
func (e statusError) Temporary() bool { return e.status/100 == 5 || e.Timeout() }
func (e statusError) UpstreamStatus() int { return e.status }
func (e statusError) UpstreamMessage() string { return e.msg }
