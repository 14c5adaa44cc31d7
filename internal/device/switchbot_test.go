package device

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"thermod/internal/retry"
)

// testPolicy keeps backoff sleeps in the millisecond range.
var testPolicy = retry.Policy{Base: time.Millisecond, Max: 10 * time.Millisecond}

func newTestService(url string) *SwitchBot {
	return NewSwitchBot(Options{
		Token:   "test-token",
		Secret:  "test-secret",
		BaseURL: url,
		Timeout: 2 * time.Second,
		Policy:  testPolicy,
	})
}

func statusPayload(temp, humidity float64) string {
	return fmt.Sprintf(`{"statusCode":100,"message":"success","body":{"temperature":%g,"humidity":%g,"battery":92,"version":"V2.3"}}`, temp, humidity)
}

func TestReadStatusSuccess(t *testing.T) {
	var gotPath string
	var gotAuth string
	var signed bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		signed = r.Header.Get("sign") != "" && r.Header.Get("t") != "" && r.Header.Get("nonce") != ""
		fmt.Fprint(w, statusPayload(21.5, 48))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	st, err := svc.ReadStatus(context.Background(), "D40E84863006")
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}

	if gotPath != "/v1.1/devices/D40E84863006/status" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "test-token" {
		t.Errorf("Authorization = %q, want token", gotAuth)
	}
	if !signed {
		t.Error("request was not signed (sign/t/nonce headers missing)")
	}

	if st.Temperature == nil || *st.Temperature != 21.5 {
		t.Errorf("Temperature = %v, want 21.5", st.Temperature)
	}
	if st.Humidity == nil || *st.Humidity != 48 {
		t.Errorf("Humidity = %v, want 48", st.Humidity)
	}
	if _, ok := st.Extra["battery"]; !ok {
		t.Errorf("battery missing from extra: %v", st.Extra)
	}
	if _, ok := st.Extra["temperature"]; ok {
		t.Error("temperature should not be duplicated into extra")
	}
}

func TestReadStatusAbsentHumidity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"statusCode":100,"message":"success","body":{"temperature":19.25}}`)
	}))
	defer srv.Close()

	st, err := newTestService(srv.URL).ReadStatus(context.Background(), "DEV1")
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if st.Temperature == nil || *st.Temperature != 19.25 {
		t.Errorf("Temperature = %v, want 19.25", st.Temperature)
	}
	if st.Humidity != nil {
		t.Errorf("Humidity = %v, want nil", *st.Humidity)
	}
}

func TestRateLimitRetryThenSuccess(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, statusPayload(22.0, 50))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	st, err := svc.ReadStatus(context.Background(), "DEV1")
	if err != nil {
		t.Fatalf("ReadStatus failed after rate-limit retries: %v", err)
	}
	if st.Temperature == nil || *st.Temperature != 22.0 {
		t.Errorf("Temperature = %v, want 22.0", st.Temperature)
	}
	if calls != 3 {
		t.Errorf("HTTP calls = %d, want 3", calls)
	}
	if got := svc.Stats().RateLimitRetries; got != 2 {
		t.Errorf("RateLimitRetries = %d, want 2", got)
	}
}

func TestRateLimitBudgetExhausted(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	_, err := svc.ReadStatus(context.Background(), "DEV1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if calls != retry.ReadAttempts {
		t.Errorf("HTTP calls = %d, want %d", calls, retry.ReadAttempts)
	}
	if got := svc.Stats().RateLimitRetries; got != int64(retry.ReadAttempts) {
		t.Errorf("RateLimitRetries = %d, want %d", got, retry.ReadAttempts)
	}
}

func TestSessionExpiryTransparentRebuild(t *testing.T) {
	// The vendor expires sessions after a handful of successful calls.
	// Simulate six good reads, a 401 on the seventh request, then
	// recovery: the seventh read must succeed via one rebuild.
	var mu sync.Mutex
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 7 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, statusPayload(20.5, 40))
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		st, err := svc.ReadStatus(ctx, "DEV1")
		if err != nil {
			t.Fatalf("read %d failed: %v", i+1, err)
		}
		if st.Temperature == nil {
			t.Fatalf("read %d returned no temperature", i+1)
		}
	}

	if got := svc.Stats().SessionRebuilds; got != 1 {
		t.Errorf("SessionRebuilds = %d, want 1", got)
	}
	if calls != 8 {
		t.Errorf("HTTP calls = %d, want 8 (7 reads + 1 rebuild retry)", calls)
	}
}

func TestSecondAuthFailureIsTerminal(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	_, err := svc.ReadStatus(context.Background(), "DEV1")
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
	if calls != 2 {
		t.Errorf("HTTP calls = %d, want 2 (original + one rebuild retry)", calls)
	}
	if got := svc.Stats().SessionRebuilds; got != 1 {
		t.Errorf("SessionRebuilds = %d, want 1", got)
	}
}

func TestUnreachableIsTerminalImmediately(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestService(srv.URL).ReadStatus(context.Background(), "DEV1")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if calls != 1 {
		t.Errorf("HTTP calls = %d, want 1 (no retry)", calls)
	}
}

func TestVendorDeviceErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"statusCode":190,"message":"Device internal error","body":{}}`)
	}))
	defer srv.Close()

	_, err := newTestService(srv.URL).ReadStatus(context.Background(), "DEV1")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestInitDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.1/devices" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"statusCode":100,"message":"success","body":{"deviceList":[
			{"deviceId":"D40E84863006","deviceName":"Meter A","deviceType":"Meter"},
			{"deviceId":"D40E84861814","deviceName":"Meter B","deviceType":"Meter"}
		]}}`)
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	ctx := context.Background()

	if err := svc.InitDevice(ctx, "D40E84863006"); err != nil {
		t.Errorf("InitDevice for known device failed: %v", err)
	}

	err := svc.InitDevice(ctx, "UNKNOWN0000")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable for unknown device", err)
	}
}

func TestInitDeviceRateLimitSurfaces(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestService(srv.URL).InitDevice(context.Background(), "DEV1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	// Initialization backoff belongs to the scheduler, not the client.
	if calls != 1 {
		t.Errorf("HTTP calls = %d, want 1", calls)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"statusCode":100,"message":"success","body":{"deviceList":[]}}`)
	}))
	defer srv.Close()

	if err := newTestService(srv.URL).Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		expected FailureClass
	}{
		{fmt.Errorf("wrapped: %w", ErrRateLimited), FailureRateLimited},
		{fmt.Errorf("wrapped: %w", ErrAuthExpired), FailureAuthExpired},
		{fmt.Errorf("wrapped: %w", ErrUnreachable), FailureUnreachable},
		{fmt.Errorf("wrapped: %w", ErrInvalidReading), FailureInvalid},
		{errors.New("something else"), FailureUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.expected {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}
