package config_test

import (
	"strings"
	"testing"

	"github.com/meridianlabs/toolbridge/internal/config"
)

const validYAML = `
mode: standalone
server:
  http:
    port: 9090
    host: 0.0.0.0
    publicUrl: https://bridge.example.com
  apiSpaces:
    - name: acme
      description: Acme tools
      bearerToken: acme-bearer-token-0123456789012345
      allowedClientTokens:
        - worker-token-1-0123456789012345678
  admin:
    adminToken: 01234567890123456789012345678901
  logging:
    level: debug
    format: json
`

func TestParse_Valid(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.HTTP.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.HTTP.Port)
	}
	if len(cfg.Server.APISpaces) != 1 || cfg.Server.APISpaces[0].Name != "acme" {
		t.Fatalf("unexpected apiSpaces: %+v", cfg.Server.APISpaces)
	}
}

func TestParse_NoTenants(t *testing.T) {
	_, err := config.Parse([]byte("server:\n  admin:\n    adminToken: 01234567890123456789012345678901\n"))
	if err == nil || !strings.Contains(err.Error(), "apiSpaces") {
		t.Fatalf("expected apiSpaces validation error, got %v", err)
	}
}

func TestParse_DuplicateBearerTokens(t *testing.T) {
	yamlDoc := `
server:
  apiSpaces:
    - name: a
      bearerToken: same-token
    - name: b
      bearerToken: same-token
`
	_, err := config.Parse([]byte(yamlDoc))
	if err == nil || !strings.Contains(err.Error(), "collides") {
		t.Fatalf("expected collision error, got %v", err)
	}
}

func TestParse_ShortAdminToken(t *testing.T) {
	yamlDoc := `
server:
  apiSpaces:
    - name: a
      bearerToken: token-a
  admin:
    adminToken: tooshort
`
	_, err := config.Parse([]byte(yamlDoc))
	if err == nil || !strings.Contains(err.Error(), "adminToken must be at least 32 characters") {
		t.Fatalf("expected admin token length error, got %v", err)
	}
}

func TestParse_UnrecognizedLoggingLevel(t *testing.T) {
	yamlDoc := `
server:
  apiSpaces:
    - name: a
      bearerToken: token-a
  logging:
    level: verbose
`
	_, err := config.Parse([]byte(yamlDoc))
	if err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Fatalf("expected logging level error, got %v", err)
	}
}

func TestParse_NoAllowedClientTokens(t *testing.T) {
	yamlDoc := `
server:
  apiSpaces:
    - name: a
      bearerToken: token-a-0123456789012345678901234
`
	_, err := config.Parse([]byte(yamlDoc))
	if err == nil || !strings.Contains(err.Error(), "allowedClientTokens") {
		t.Fatalf("expected allowedClientTokens validation error, got %v", err)
	}
}

func TestTenants_ConvertsAllowedClientTokens(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tenants := cfg.Tenants()
	if len(tenants) != 1 {
		t.Fatalf("expected 1 tenant, got %d", len(tenants))
	}
	if !tenants[0].Admits("worker-token-1-0123456789012345678") {
		t.Fatal("expected worker-token-1 to be admitted")
	}
	if tenants[0].Admits("unknown-token") {
		t.Fatal("expected unknown-token to be rejected")
	}
}
