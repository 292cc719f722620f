// Package health polls the browser's remote debugging endpoint. The
// endpoint being unreachable, slow or malformed is an expected status,
// never an error.
package health

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/blang/semver"
)

const (
	// DefaultTimeout bounds the whole request so a stalled endpoint
	// cannot back up the scheduler's ticks.
	DefaultTimeout = 5 * time.Second

	// maxBodySize caps the response read; /json/version is a few
	// hundred bytes on a healthy endpoint.
	maxBodySize = 64 << 10
)

// Monitor issues the bounded-timeout version probe.
type Monitor struct {
	client *http.Client
}

func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{client: &http.Client{Timeout: timeout}}
}

// versionPayload is the subset of /json/version this launcher reads.
// The Browser field carries "<product>/<version>".
type versionPayload struct {
	Browser string `json:"Browser"`
}

// Poll fetches http://host:port/json/version and extracts the version.
// Any network error, timeout, oversized or malformed body, or missing
// field yields (false, "").
func (m *Monitor) Poll(host string, port int) (responding bool, version string) {
	url := fmt.Sprintf("http://%s/json/version", net.JoinHostPort(host, strconv.Itoa(port)))
	return m.PollURL(url)
}

// PollURL is Poll against an explicit endpoint URL.
func (m *Monitor) PollURL(url string) (bool, string) {
	resp, err := m.client.Get(url)
	if err != nil {
		return false, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return false, ""
	}

	var payload versionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, ""
	}
	if payload.Browser == "" {
		return false, ""
	}
	return true, extractVersion(payload.Browser)
}

// extractVersion takes the part after the product name ("Chrome/9.1.0"
// -> "9.1.0") and normalizes it when it parses as a version. Browser
// builds use four components, which semver rejects; those are surfaced
// as-is.
func extractVersion(browser string) string {
	version := browser
	if idx := strings.IndexByte(browser, '/'); idx >= 0 {
		version = browser[idx+1:]
	}
	version = strings.TrimSpace(version)
	if v, err := semver.ParseTolerant(version); err == nil {
		return v.String()
	}
	return version
}
