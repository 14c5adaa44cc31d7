package device

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"thermod/internal/events"
	"thermod/internal/retry"
)

// DefaultBaseURL is the SwitchBot cloud API endpoint.
const DefaultBaseURL = "https://api.switch-bot.com"

// DefaultTimeout bounds every vendor API request. A client without a
// timeout could stall the whole scheduler on one unresponsive device.
const DefaultTimeout = 10 * time.Second

// Vendor envelope status codes.
const (
	vendorOK            = 100
	vendorDeviceOffline = 161
	vendorDeviceError   = 190
)

// SwitchBot is the live device service. It holds one authenticated
// session, created lazily and rebuilt when an authentication failure is
// observed: the vendor expires sessions after a small number of calls,
// so a 401 triggers a transparent rebuild and one retry of the same
// call. A second consecutive 401 is terminal for that call.
//
// The scheduler is the only caller; session rebuild needs no locking
// under that model.
type SwitchBot struct {
	token   string
	secret  string
	baseURL string
	timeout time.Duration
	policy  retry.Policy
	logger  *log.Logger
	events  *events.Store

	session *session

	rateLimitRetries int64
	sessionRebuilds  int64
}

// NewSwitchBot creates the live service. The session is not built until
// the first call.
func NewSwitchBot(opts Options) *SwitchBot {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	policy := opts.Policy
	if policy.Base <= 0 {
		policy = retry.Default()
	}

	return &SwitchBot{
		token:   opts.Token,
		secret:  opts.Secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		policy:  policy,
		logger:  opts.Logger,
		events:  opts.Events,
	}
}

// session is one authenticated client handle. Requests are signed per
// the vendor's v1.1 scheme: HMAC-SHA256 over token+timestamp+nonce,
// keyed with the secret.
type session struct {
	client *http.Client
	token  string
	secret string
}

func newSession(token, secret string, timeout time.Duration) *session {
	return &session{
		client: &http.Client{Timeout: timeout},
		token:  token,
		secret: secret,
	}
}

func (s *session) sign(req *http.Request) {
	t := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := uuid.NewString()

	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(s.token + t + nonce))
	sig := strings.ToUpper(base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	req.Header.Set("Authorization", s.token)
	req.Header.Set("sign", sig)
	req.Header.Set("t", t)
	req.Header.Set("nonce", nonce)
	req.Header.Set("Content-Type", "application/json; charset=utf8")
}

// apiEnvelope is the vendor's response wrapper.
type apiEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Body       json.RawMessage `json:"body"`
}

// get performs one signed GET and maps HTTP and vendor failures onto
// the package's failure classes.
func (s *session) get(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUnreachable, err)
	}
	s.sign(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: HTTP 401", ErrAuthExpired)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	default:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnreachable, err)
	}

	switch env.StatusCode {
	case vendorOK:
		return env.Body, nil
	case vendorDeviceOffline, vendorDeviceError:
		return nil, fmt.Errorf("%w: vendor code %d: %s", ErrUnreachable, env.StatusCode, env.Message)
	default:
		return nil, fmt.Errorf("%w: vendor code %d: %s", ErrUnreachable, env.StatusCode, env.Message)
	}
}

// ensureSession lazily builds the authenticated handle.
func (s *SwitchBot) ensureSession() *session {
	if s.session == nil {
		s.session = newSession(s.token, s.secret, s.timeout)
	}
	return s.session
}

// rebuildSession discards the current handle and builds a fresh one.
func (s *SwitchBot) rebuildSession() {
	if s.session != nil {
		s.session.client.CloseIdleConnections()
	}
	s.session = newSession(s.token, s.secret, s.timeout)
	s.sessionRebuilds++

	if s.logger != nil {
		s.logger.Printf("[switchbot] Session rebuilt after authentication failure (total rebuilds: %d)", s.sessionRebuilds)
	}
	if s.events != nil {
		s.events.Add(events.EventSessionRebuilt, "", "auth expired, session rebuilt")
	}
}

// call runs one API operation with the session-rebuild and rate-limit
// retry state machine: a 401 rebuilds the session once and retries the
// same call without consuming the rate-limit budget; rate-limit
// failures retry with backoff up to the per-call ceiling; everything
// else is terminal immediately.
func (s *SwitchBot) call(ctx context.Context, address string, op func(*session) (json.RawMessage, error)) (json.RawMessage, error) {
	authRetried := false
	attempts := 0

	for {
		body, err := op(s.ensureSession())
		if err == nil {
			return body, nil
		}

		switch {
		case errors.Is(err, ErrAuthExpired):
			if authRetried {
				return nil, fmt.Errorf("authentication failed after session rebuild: %w", err)
			}
			s.rebuildSession()
			authRetried = true

		case errors.Is(err, ErrRateLimited):
			attempts++
			s.rateLimitRetries++
			if s.events != nil {
				s.events.Add(events.EventRateLimited, address, fmt.Sprintf("attempt %d", attempts))
			}
			if attempts >= retry.ReadAttempts {
				return nil, fmt.Errorf("rate limit budget exhausted after %d attempts: %w", attempts, err)
			}

			delay := s.policy.Delay(attempts - 1)
			if s.logger != nil {
				s.logger.Printf("[switchbot] Rate limited on %s (attempt %d), backing off %v", address, attempts, delay)
			}
			if serr := retry.Sleep(ctx, delay); serr != nil {
				return nil, fmt.Errorf("retry interrupted: %w", err)
			}

		default:
			return nil, err
		}
	}
}

// deviceStatusBody is the subset of the status payload the collector
// interprets; the rest lands in Status.Extra untouched.
type deviceStatusBody struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// ReadStatus implements Service.
func (s *SwitchBot) ReadStatus(ctx context.Context, address string) (*Status, error) {
	url := s.baseURL + "/v1.1/devices/" + address + "/status"

	raw, err := s.call(ctx, address, func(sess *session) (json.RawMessage, error) {
		return sess.get(ctx, url)
	})
	if err != nil {
		return nil, err
	}

	var parsed deviceStatusBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing status: %v", ErrUnreachable, err)
	}

	extra := map[string]interface{}{}
	if err := json.Unmarshal(raw, &extra); err == nil {
		delete(extra, "temperature")
		delete(extra, "humidity")
	}

	return &Status{
		Temperature: parsed.Temperature,
		Humidity:    parsed.Humidity,
		Extra:       extra,
	}, nil
}

// ReadTemperature implements Service.
func (s *SwitchBot) ReadTemperature(ctx context.Context, address string) (*float64, error) {
	st, err := s.ReadStatus(ctx, address)
	if err != nil {
		return nil, err
	}
	return st.Temperature, nil
}

// ReadHumidity implements Service.
func (s *SwitchBot) ReadHumidity(ctx context.Context, address string) (*float64, error) {
	st, err := s.ReadStatus(ctx, address)
	if err != nil {
		return nil, err
	}
	return st.Humidity, nil
}

// deviceListBody is the payload of the device list endpoint.
type deviceListBody struct {
	DeviceList []struct {
		DeviceID   string `json:"deviceId"`
		DeviceName string `json:"deviceName"`
		DeviceType string `json:"deviceType"`
	} `json:"deviceList"`
}

// InitDevice implements Service: the address must appear in the
// vendor's device list. Rate-limit retries around initialization are
// the scheduler's responsibility, so a 429 surfaces directly here.
func (s *SwitchBot) InitDevice(ctx context.Context, address string) error {
	raw, err := s.listDevices(ctx)
	if err != nil {
		return err
	}

	var parsed deviceListBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%w: parsing device list: %v", ErrUnreachable, err)
	}

	for _, d := range parsed.DeviceList {
		if d.DeviceID == address {
			return nil
		}
	}
	return fmt.Errorf("%w: device %s not registered with vendor", ErrUnreachable, address)
}

// Ping implements Service using the device list endpoint, which is the
// cheapest authenticated call the vendor offers.
func (s *SwitchBot) Ping(ctx context.Context) error {
	_, err := s.listDevices(ctx)
	return err
}

// listDevices fetches the device list with the auth-rebuild path but
// without the rate-limit retry loop.
func (s *SwitchBot) listDevices(ctx context.Context) (json.RawMessage, error) {
	url := s.baseURL + "/v1.1/devices"

	body, err := s.ensureSession().get(ctx, url)
	if err == nil {
		return body, nil
	}
	if !errors.Is(err, ErrAuthExpired) {
		return nil, err
	}

	s.rebuildSession()
	body, err = s.ensureSession().get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("authentication failed after session rebuild: %w", err)
	}
	return body, nil
}

// Stats implements Service.
func (s *SwitchBot) Stats() Stats {
	return Stats{
		RateLimitRetries: s.rateLimitRetries,
		SessionRebuilds:  s.sessionRebuilds,
	}
}
