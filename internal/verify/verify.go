// Package verify implements the challenge-response handshake used to
// confirm that a callback endpoint expects a subscription.
package verify

import (
	"context"
	"hash/crc32"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Challenge produces a short opaque token, unique in practice across
// calls. It is not unguessable; the protocol only requires that a
// callback cannot answer correctly without receiving the challenge.
// Deployments needing anti-guessing guarantees should replace this with
// a cryptographic generator.
func Challenge() string {
	base := strconv.Itoa(rand.IntN(100000000))
	salt := time.Now().String()
	sum := crc32.ChecksumIEEE([]byte(base + salt))
	return strconv.FormatUint(uint64(sum), 36)
}

// Verifier drives the handshake against subscriber callbacks.
type Verifier struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Verifier. Every handshake call is bounded by timeout.
func New(client HTTPClient, timeout time.Duration) *Verifier {
	return &Verifier{client: client, timeout: timeout}
}

// Request describes one handshake attempt.
type Request struct {
	CallbackURL string
	Mode        string // echoed as hub.mode
	TopicURL    string
	VerifyToken string // echoed as hub.verify_token when non-empty
}

// Verify issues the challenge GET to the callback and reports whether
// the endpoint echoed the challenge exactly. Timeouts, transport
// errors, and mismatched bodies are all plain failures; nothing
// propagates past this boundary.
func (v *Verifier) Verify(ctx context.Context, req Request) bool {
	challenge := Challenge()

	target, err := url.Parse(req.CallbackURL)
	if err != nil {
		return false
	}

	// Callback URLs may carry their own query string; the handshake
	// parameters are added alongside it.
	q := target.Query()
	q.Set("hub.mode", req.Mode)
	q.Set("hub.topic", req.TopicURL)
	// Leases are unsupported; the field is still sent for subscribers
	// that expect it.
	q.Set("hub.lease_seconds", "0")
	q.Set("hub.challenge", challenge)
	if req.VerifyToken != "" {
		q.Set("hub.verify_token", req.VerifyToken)
	}
	target.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return false
	}

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false
	}
	return string(body) == challenge
}
