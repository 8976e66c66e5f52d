package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/tigasdev/signaling/internal/config"
	"github.com/tigasdev/signaling/internal/metrics"
	"github.com/tigasdev/signaling/internal/rooms"
	"github.com/tigasdev/signaling/internal/turnrest"
)

func testConfig() config.Config {
	return config.Config{
		ListenAddr:      "127.0.0.1:0",
		LogFormat:       config.LogFormatText,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: 2 * time.Second,
		Mode:            config.ModeDev,
	}
}

func startTestServer(t *testing.T, cfg config.Config, opts Options) (baseURL string) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	build := BuildInfo{Version: "1.2.3", Commit: "abc", BuildTime: "time"}
	srv := New(cfg, log, build, opts)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	return "http://" + ln.Addr().String()
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s: status=%d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return body
}

func TestBannerHealthAndVersion(t *testing.T) {
	baseURL := startTestServer(t, testConfig(), Options{})

	t.Run("banner", func(t *testing.T) {
		body := getJSON(t, baseURL+"/", http.StatusOK)
		if body["service"] != "signaling-server" || body["version"] != "1.2.3" {
			t.Fatalf("body=%v", body)
		}
	})

	t.Run("health", func(t *testing.T) {
		body := getJSON(t, baseURL+"/health", http.StatusOK)
		if body["service"] != "signaling-server" || body["status"] != "healthy" {
			t.Fatalf("body=%v", body)
		}
		if _, ok := body["timestamp"].(string); !ok {
			t.Fatalf("missing timestamp: %v", body)
		}
		if _, ok := body["uptime"].(float64); !ok {
			t.Fatalf("missing uptime: %v", body)
		}
	})

	t.Run("healthz", func(t *testing.T) {
		body := getJSON(t, baseURL+"/healthz", http.StatusOK)
		if body["ok"] != true {
			t.Fatalf("body=%v", body)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		body := getJSON(t, baseURL+"/readyz", http.StatusOK)
		if body["ready"] != true {
			t.Fatalf("body=%v", body)
		}
	})

	t.Run("version", func(t *testing.T) {
		body := getJSON(t, baseURL+"/version", http.StatusOK)
		if body["commit"] != "abc" || body["buildTime"] != "time" {
			t.Fatalf("body=%v", body)
		}
	})
}

func TestStatsEndpoint(t *testing.T) {
	stats := rooms.Stats{
		ActiveConnections: 3,
		TotalConnections:  10,
		ActiveRooms:       1,
		TotalRoomsCreated: 4,
		RoomMemberCounts:  map[string]int{"lobby": 3},
	}
	baseURL := startTestServer(t, testConfig(), Options{
		Stats: func() rooms.Stats { return stats },
	})

	body := getJSON(t, baseURL+"/stats", http.StatusOK)
	if body["activeConnections"] != float64(3) || body["totalRoomsCreated"] != float64(4) {
		t.Fatalf("body=%v", body)
	}
	counts, ok := body["roomMemberCounts"].(map[string]any)
	if !ok || counts["lobby"] != float64(3) {
		t.Fatalf("roomMemberCounts=%v", body["roomMemberCounts"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Inc(metrics.ConnectionsTotal)
	baseURL := startTestServer(t, testConfig(), Options{Metrics: metrics.PrometheusHandler(m)})

	resp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), metrics.ConnectionsTotal) {
		t.Fatalf("exposition missing counter: %s", raw)
	}
}

func TestICEEndpointSchema(t *testing.T) {
	cfg := testConfig()
	cfg.ICEServers = []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478?transport=udp"}, Username: "user", Credential: "pass"},
	}
	baseURL := startTestServer(t, cfg, Options{})

	body := getJSON(t, baseURL+"/webrtc/ice", http.StatusOK)
	servers, ok := body["iceServers"].([]any)
	if !ok || len(servers) != 2 {
		t.Fatalf("iceServers=%v", body["iceServers"])
	}
	first, ok := servers[0].(map[string]any)
	if !ok {
		t.Fatalf("servers[0]=%v", servers[0])
	}
	if _, ok := first["urls"]; !ok {
		t.Fatalf("expected urls field on first server: %#v", first)
	}
}

func TestICEEndpointEmptyListEncodesAsArray(t *testing.T) {
	baseURL := startTestServer(t, testConfig(), Options{})

	resp, err := http.Get(baseURL + "/webrtc/ice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"iceServers":[]`) {
		t.Fatalf("body=%s", raw)
	}
}

func TestICEEndpointOverlaysTURNRESTCredentials(t *testing.T) {
	gen, err := turnrest.NewGenerator(turnrest.Config{
		SharedSecret:   "secret",
		TTLSeconds:     3600,
		UsernamePrefix: "tigasdev",
		Now:            func() time.Time { return time.Unix(1_700_000_000, 0).UTC() },
		NewID:          func() string { return "anon" },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	cfg := testConfig()
	cfg.ICEServers = []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478"}, Username: "static", Credential: "static"},
	}
	baseURL := startTestServer(t, cfg, Options{TURN: gen})

	body := getJSON(t, baseURL+"/webrtc/ice", http.StatusOK)
	servers := body["iceServers"].([]any)

	stun := servers[0].(map[string]any)
	if _, ok := stun["username"]; ok && stun["username"] != "" {
		t.Fatalf("stun server should have no username: %v", stun)
	}

	turn := servers[1].(map[string]any)
	if turn["username"] != "1700003600:tigasdev:anon" {
		t.Fatalf("turn username=%v", turn["username"])
	}
	if turn["credential"] == "static" {
		t.Fatalf("static credential should be replaced")
	}
}

func TestTURNCredentialsEndpoint(t *testing.T) {
	gen, err := turnrest.NewGenerator(turnrest.Config{
		SharedSecret:   "secret",
		TTLSeconds:     600,
		UsernamePrefix: "tigasdev",
		Realm:          "tigasdev.com",
		Now:            func() time.Time { return time.Unix(1000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	baseURL := startTestServer(t, testConfig(), Options{TURN: gen})

	body := getJSON(t, baseURL+"/webrtc/turn-credentials?connectionId=conn-1", http.StatusOK)
	if body["username"] != "1600:tigasdev:conn-1" {
		t.Fatalf("username=%v", body["username"])
	}
	if body["realm"] != "tigasdev.com" || body["ttl"] != float64(600) {
		t.Fatalf("body=%v", body)
	}
}

func TestTURNCredentialsUnavailableWithoutSecret(t *testing.T) {
	baseURL := startTestServer(t, testConfig(), Options{})
	getJSON(t, baseURL+"/webrtc/turn-credentials", http.StatusServiceUnavailable)
}

func TestOriginPolicyRejectsCrossOrigin(t *testing.T) {
	baseURL := startTestServer(t, testConfig(), Options{})

	req, err := http.NewRequest(http.MethodGet, baseURL+"/webrtc/ice", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "https://evil.example.com")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestOriginPolicyAllowsAllowlistedOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://app.tigasdev.com"}
	baseURL := startTestServer(t, cfg, Options{})

	req, err := http.NewRequest(http.MethodGet, baseURL+"/webrtc/ice", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "https://app.tigasdev.com")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.tigasdev.com" {
		t.Fatalf("Access-Control-Allow-Origin=%q", got)
	}
}
