package engine

import (
	"context"
	"fmt"
	"io"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// BrowserClient wraps tls-client with a Chrome TLS fingerprint.
// YouTube's image CDNs (yt3.ggpht.com / googleusercontent) rate-limit
// default Go user agents hard; requests from this client appear as
// Chrome 131+ to TLS fingerprinting (JA3 hash).
type BrowserClient struct {
	client tls_client.HttpClient
}

// NewBrowserClient creates a client that impersonates Chrome 131.
func NewBrowserClient(timeoutSeconds int) (*BrowserClient, error) {
	jar := tls_client.NewCookieJar()
	opts := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(timeoutSeconds),
		tls_client.WithClientProfile(profiles.Chrome_131),
		tls_client.WithCookieJar(jar),
	}
	client, err := tls_client.NewHttpClient(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("tls-client init: %w", err)
	}
	return &BrowserClient{client: client}, nil
}

// Do executes a request with Chrome TLS fingerprint.
// Returns body bytes, HTTP status code, and any error.
func (bc *BrowserClient) Do(method, url string, headers map[string]string, body io.Reader) ([]byte, int, error) {
	req, err := fhttp.NewRequest(method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	// Chrome-like header order matters for fingerprinting
	req.Header[fhttp.HeaderOrderKey] = []string{
		"accept",
		"accept-language",
		"accept-encoding",
		"referer",
		"cookie",
		"user-agent",
	}

	resp, err := bc.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("tls request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	return data, resp.StatusCode, nil
}

// Download fetches raw bytes from url with retry on transient failures.
// Implements the Downloader capability used for avatar/banner fetches.
func (bc *BrowserClient) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return RetryDo(ctx, DefaultRetryConfig, func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, status, err := bc.Do("GET", rawURL, chromeHeaders(), nil)
		if err != nil {
			return nil, err
		}
		if IsRetryableStatus(status) {
			return nil, &httpStatusError{StatusCode: status}
		}
		if status != 200 {
			return nil, fmt.Errorf("download status %d", status)
		}
		return data, nil
	})
}

// chromeHeaders returns common Chrome browser headers for image fetches.
func chromeHeaders() map[string]string {
	return map[string]string{
		"accept":          "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
		"accept-language": "en-US,en;q=0.9",
		"accept-encoding": "gzip, deflate, br",
		"referer":         "https://www.youtube.com/",
		"user-agent":      UserAgentChrome,
	}
}

// UserAgentChrome is the UA string sent alongside the Chrome TLS profile.
const UserAgentChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
