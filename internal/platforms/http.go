package platforms

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"vitemadose-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// NewHTTPClient builds the shared resty client for one platform.
// Clients are safe for concurrent use and shared by all workers
// probing that platform.
func NewHTTPClient(baseURL string, timeout time.Duration, tracerName string) *resty.Client {
	client := resty.New()
	client.SetBaseURL(baseURL)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err == nil {
		client.SetCookieJar(jar)
	}

	client.SetHeader("user-agent", userAgent)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	telemetry.InstrumentResty(client, tracerName)
	return client
}

// CheckStatus translates an HTTP response status into the adapter
// error taxonomy: 403 escalates as blocked, any other non-2xx is an
// ordinary page error.
func CheckStatus(res *resty.Response) error {
	if res.StatusCode() == http.StatusForbidden {
		return ErrBlocked
	}
	if res.IsError() {
		return fmt.Errorf("http %d", res.StatusCode())
	}
	return nil
}
