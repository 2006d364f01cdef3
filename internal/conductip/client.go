// Package conductip is the HTTPS client for the ConductIP video-routing
// device. It performs one authenticated JSON request/response cycle at a time
// and classifies every outcome into the Failure taxonomy; nothing in here
// panics or aborts the caller.
package conductip

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"

	"conductbridge"
)

// apiPrefix roots every request path; the device serves its REST API there.
const apiPrefix = "/api"

// defaultTimeout bounds a single request. The polling interval must stay above
// the practical response time of a full cycle, so this is deliberately short.
const defaultTimeout = 5 * time.Second

// Config carries the operator-provided device settings.
type Config struct {
	Host     string
	Username string
	Password string
	// AllowUnauthorized disables certificate verification. Opt-in for devices
	// shipping self-signed certificates.
	AllowUnauthorized bool
	// Timeout overrides defaultTimeout when positive.
	Timeout time.Duration
}

// Complete reports whether the credential set is sufficient to attempt a
// request at all.
func (c Config) Complete() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// baseURL builds the API root. Hosts carrying an explicit scheme are kept
// as-is so tests can point the client at an httptest server.
func (c Config) baseURL() string {
	if strings.Contains(c.Host, "://") {
		return strings.TrimSuffix(c.Host, "/") + apiPrefix
	}
	return "https://" + c.Host + apiPrefix
}

// Client talks to one ConductIP device.
type Client struct {
	http *resty.Client
	cfg  Config
	sink StatusSink
}

// New builds a client for the given device. The sink receives the outcome of
// every request; pass NopSink{} if status latching is not needed.
func New(cfg Config, sink StatusSink) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	r := resty.New().
		SetBaseURL(cfg.baseURL()).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBasicAuth(cfg.Username, cfg.Password)

	if cfg.AllowUnauthorized {
		r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	return &Client{http: r, cfg: cfg, sink: sink}
}

// Configured reports whether the client holds a complete credential set.
func (c *Client) Configured() bool {
	return c.cfg.Complete()
}

// FetchRooms retrieves the full topology from GET /rooms/info, panels and
// their salvo lists embedded. A 2xx response with no body yields (nil, nil).
func (c *Client) FetchRooms(ctx context.Context) ([]conductbridge.Room, error) {
	raw, err := c.do(ctx, http.MethodGet, "/rooms/info", nil)
	if err != nil || raw == nil {
		return nil, err
	}
	var rooms []conductbridge.Room
	if err := json.Unmarshal(raw, &rooms); err != nil {
		return nil, c.fail(&Failure{Kind: KindResponseMalformed, Message: "rooms response is not an array of rooms"})
	}
	return rooms, nil
}

// FetchActiveSalvos retrieves the currently active salvo set from
// GET /salvos/active.
func (c *Client) FetchActiveSalvos(ctx context.Context) ([]conductbridge.Salvo, error) {
	raw, err := c.do(ctx, http.MethodGet, "/salvos/active", nil)
	if err != nil || raw == nil {
		return nil, err
	}
	var salvos []conductbridge.Salvo
	if err := json.Unmarshal(raw, &salvos); err != nil {
		return nil, c.fail(&Failure{Kind: KindResponseMalformed, Message: "active salvos response is not an array of salvos"})
	}
	return salvos, nil
}

// FetchPanel retrieves a single panel from GET /panels/info/{id}. Legacy
// endpoint for firmware that does not embed salvos in the rooms response; the
// poller uses the embedded variant.
func (c *Client) FetchPanel(ctx context.Context, panelID string) (conductbridge.Panel, error) {
	raw, err := c.do(ctx, http.MethodGet, "/panels/info/"+panelID, nil)
	if err != nil || raw == nil {
		return conductbridge.Panel{}, err
	}
	var panel conductbridge.Panel
	if err := json.Unmarshal(raw, &panel); err != nil {
		return conductbridge.Panel{}, c.fail(&Failure{Kind: KindResponseMalformed, Message: "panel response is not a panel object"})
	}
	return panel, nil
}

// TriggerSalvo fires POST /salvos/{id}. Any 2xx answer, with or without a
// body, counts as success.
func (c *Client) TriggerSalvo(ctx context.Context, salvoID string) error {
	_, err := c.do(ctx, http.MethodPost, "/salvos/"+salvoID, nil)
	return err
}

// do performs one request/response cycle. It returns the raw JSON body, nil
// for a bodyless 2xx ("no data"), or a *Failure. Every outcome is reported to
// the status sink.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	if !c.cfg.Complete() {
		return nil, c.fail(&Failure{
			Kind:    KindConfigurationIncomplete,
			Message: "device host, username and password must all be configured",
		})
	}

	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, c.fail(c.classifyTransport(err))
	}

	if resp.IsError() {
		return nil, c.fail(classifyHTTP(resp.StatusCode()))
	}

	b := resp.Body()
	if len(strings.TrimSpace(string(b))) == 0 {
		c.sink.ReportStatus(conductbridge.StateOk, "connected")
		return nil, nil
	}
	if !json.Valid(b) {
		return nil, c.fail(&Failure{Kind: KindResponseMalformed, Message: "device returned a non-JSON body"})
	}

	c.sink.ReportStatus(conductbridge.StateOk, "connected")
	return json.RawMessage(b), nil
}

// fail reports the failure to the sink and hands it back as an error.
func (c *Client) fail(f *Failure) error {
	c.sink.ReportStatus(f.State(), f.Message)
	return f
}

// classifyHTTP maps a non-2xx status code onto the failure taxonomy.
func classifyHTTP(code int) *Failure {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &Failure{Kind: KindAuthenticationFailed, Code: code, Message: "authentication failed, check username and password"}
	case code == http.StatusNotFound:
		return &Failure{Kind: KindEndpointNotFound, Code: code, Message: "endpoint not found, check device firmware supports the API"}
	default:
		return &Failure{Kind: KindAPIError, Code: code, Message: fmt.Sprintf("device rejected the request with status %d", code)}
	}
}

// classifyTransport maps a transport-level error (no HTTP response at all)
// onto the failure taxonomy with a distinguishing message per cause.
func (c *Client) classifyTransport(err error) *Failure {
	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostname    x509.HostnameError
		dnsErr      *net.DNSError
		netErr      net.Error
	)

	switch {
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostname):
		msg := "TLS certificate verification failed"
		if !c.cfg.AllowUnauthorized {
			msg += "; enable 'allow unauthorized certificates' if the device uses a self-signed certificate"
		}
		return &Failure{Kind: KindConnectionFailure, Message: msg}

	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindTimeout, Message: "request to device timed out"}

	case errors.As(err, &dnsErr):
		return &Failure{Kind: KindConnectionFailure, Message: fmt.Sprintf("cannot resolve device host %q", c.cfg.Host)}

	case errors.Is(err, syscall.ECONNREFUSED):
		return &Failure{Kind: KindConnectionFailure, Message: "connection refused by device"}

	case errors.As(err, &netErr) && netErr.Timeout():
		return &Failure{Kind: KindTimeout, Message: "request to device timed out"}

	default:
		return &Failure{Kind: KindConnectionFailure, Message: "cannot reach device: " + err.Error()}
	}
}
