package config

import (
	"strings"
	"testing"
)

func TestParseICEServersJSON(t *testing.T) {
	servers, err := ParseICEServersJSON(`[
		{"urls": "stun:stun.l.google.com:19302"},
		{"urls": ["turn:turn.tigasdev.com:3478?transport=udp", "turns:turn.tigasdev.com:5349"],
		 "username": "user", "credential": "pass"}
	]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if len(servers[0].URLs) != 1 || servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("servers[0]=%+v", servers[0])
	}
	if len(servers[1].URLs) != 2 || servers[1].Username != "user" {
		t.Fatalf("servers[1]=%+v", servers[1])
	}
	cred, ok := servers[1].Credential.(string)
	if !ok || cred != "pass" {
		t.Fatalf("credential=%v", servers[1].Credential)
	}
}

func TestParseICEServersJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"missing urls", `[{"username": "u"}]`, "missing urls"},
		{"empty url entry", `[{"urls": ["stun:a", " "]}]`, "empty entries"},
		{"bad scheme", `[{"urls": "http://example.com"}]`, "unsupported url scheme"},
		{"turn without username", `[{"urls": "turn:t.example.com", "credential": "p"}]`, "require username"},
		{"turn without credential", `[{"urls": "turn:t.example.com", "username": "u"}]`, "require credential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseICEServersJSON(tt.raw)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestICEServersFromConvenienceEnv(t *testing.T) {
	servers, err := parseICEServersFromValues("",
		"stun:stun1.example.com:3478, stun:stun2.example.com:3478",
		"turn:turn.example.com:3478",
		"user", "pass")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("stun urls=%v", servers[0].URLs)
	}
	if servers[1].Username != "user" {
		t.Fatalf("turn server=%+v", servers[1])
	}
}

func TestICEServersJSONWinsOverConvenienceEnv(t *testing.T) {
	servers, err := parseICEServersFromValues(
		`[{"urls": "stun:only.example.com:3478"}]`,
		"stun:ignored.example.com:3478", "", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:only.example.com:3478" {
		t.Fatalf("servers=%+v", servers)
	}
}

func TestTurnURLsRequireStaticCredentials(t *testing.T) {
	_, err := parseICEServersFromValues("", "", "turn:turn.example.com:3478", "", "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), envTurnUsername) {
		t.Fatalf("err=%v", err)
	}
}

func TestNoICEEnvMeansNoServers(t *testing.T) {
	servers, err := parseICEServersFromValues("", "", "", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("servers=%+v", servers)
	}
}
