package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvDomain, "")
}

func TestLoadCredentials_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cdmon.yaml", `api_key: "testkey"
base_domain: example.com
zones:
  - example.com
  - sub.example.org
api_url: "http://localhost:8080/api"
timeout: 10s
`)

	creds, err := LoadCredentialsFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &Credentials{
		APIKey:     "testkey",
		BaseDomain: "example.com",
		Zones:      []string{"example.com", "sub.example.org"},
		APIURL:     "http://localhost:8080/api",
		Timeout:    10 * time.Second,
	}
	if !reflect.DeepEqual(creds, want) {
		t.Errorf("got %+v, want %+v", creds, want)
	}
}

func TestLoadCredentials_YAMLDomainAlias(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cdmon.yml", "api_key: k\ndomain: example.es\n")

	creds, err := LoadCredentialsFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.BaseDomain != "example.es" {
		t.Errorf("expected base domain 'example.es', got %q", creds.BaseDomain)
	}
}

func TestLoadCredentials_YAMLEnvVarExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_CDMON_KEY", "key-from-env")

	path := writeFile(t, "cdmon.yaml", "api_key: \"${TEST_CDMON_KEY}\"\nbase_domain: example.com\n")

	creds, err := LoadCredentialsFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "key-from-env" {
		t.Errorf("expected api_key 'key-from-env', got %q", creds.APIKey)
	}
	if creds.BaseDomain != "example.com" {
		t.Errorf("expected base_domain unchanged, got %q", creds.BaseDomain)
	}
}

func TestLoadCredentials_CertbotINI(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cdmon.ini", `# CDmon credentials
dns_cdmon_api_key = abc123
dns_cdmon_domain = example.com
`)

	creds, err := LoadCredentialsFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "abc123" {
		t.Errorf("expected api_key 'abc123', got %q", creds.APIKey)
	}
	if creds.BaseDomain != "example.com" {
		t.Errorf("expected base domain 'example.com', got %q", creds.BaseDomain)
	}
	if creds.Timeout != 0 || creds.APIURL != "" || creds.Zones != nil {
		t.Errorf("expected optional settings unset, got %+v", creds)
	}
}

func TestLoadCredentials_INIDollarKeptLiteral(t *testing.T) {
	clearEnv(t)
	t.Setenv("CDMON_SUFFIX", "expanded")
	path := writeFile(t, "cdmon.ini", `dns_cdmon_api_key = 'abc$def'
dns_cdmon_domain = "${CDMON_SUFFIX}.example.com"
`)

	creds, err := LoadCredentialsFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "abc$def" {
		t.Errorf("expected api_key 'abc$def', got %q", creds.APIKey)
	}
	if creds.BaseDomain != "expanded.example.com" {
		t.Errorf("expected base domain 'expanded.example.com', got %q", creds.BaseDomain)
	}
}

func TestLoadCredentials_BareINIKeys(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "credentials", "API_KEY=abc123\nZONES=example.com, example.org\nTIMEOUT=45\n")

	creds, err := LoadCredentialsFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "abc123" {
		t.Errorf("expected api_key 'abc123', got %q", creds.APIKey)
	}
	if want := []string{"example.com", "example.org"}; !reflect.DeepEqual(creds.Zones, want) {
		t.Errorf("expected zones %v, got %v", want, creds.Zones)
	}
	if creds.Timeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %s", creds.Timeout)
	}
}

func TestLoadCredentials_EnvFallback(t *testing.T) {
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvDomain, "env.example.com")
	path := writeFile(t, "cdmon.ini", "dns_cdmon_propagation_seconds = 90\n")

	creds, err := LoadCredentialsFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "env-key" {
		t.Errorf("expected api_key from %s, got %q", EnvAPIKey, creds.APIKey)
	}
	if creds.BaseDomain != "env.example.com" {
		t.Errorf("expected base domain from %s, got %q", EnvDomain, creds.BaseDomain)
	}
}

func TestLoadCredentials_FileWinsOverEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvDomain, "env.example.com")
	path := writeFile(t, "cdmon.yaml", "api_key: file-key\nbase_domain: file.example.com\n")

	creds, err := LoadCredentialsFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "file-key" || creds.BaseDomain != "file.example.com" {
		t.Errorf("expected file values, got %+v", creds)
	}
}

func TestLoadCredentials_MissingAPIKey(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cdmon.yaml", "base_domain: example.com\n")

	if _, err := LoadCredentialsFromPath(path); err == nil {
		t.Fatal("expected error for missing api_key, got nil")
	}
}

func TestLoadCredentials_InvalidTimeout(t *testing.T) {
	clearEnv(t)
	for _, raw := range []string{"soon", "-5", "-1s"} {
		path := writeFile(t, "cdmon.yaml", "api_key: k\ntimeout: \""+raw+"\"\n")
		if _, err := LoadCredentialsFromPath(path); err == nil {
			t.Errorf("timeout %q: expected error, got nil", raw)
		}
	}
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	for _, path := range []string{"/nonexistent/cdmon.yaml", "/nonexistent/cdmon.ini"} {
		if _, err := LoadCredentialsFromPath(path); err == nil {
			t.Errorf("LoadCredentialsFromPath(%q): expected error, got nil", path)
		}
	}
}

func TestLoadCredentials_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "cdmon.yaml", "api_key: [unclosed\n")
	if _, err := LoadCredentialsFromPath(path); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestLoadCredentials_DefaultPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "custom.yaml", "api_key: from-custom-path\n")
	t.Setenv(EnvCredentialsPath, path)

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "from-custom-path" {
		t.Errorf("expected api_key 'from-custom-path', got %q", creds.APIKey)
	}
}

func TestFromEnv(t *testing.T) {
	clearEnv(t)
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error without API_KEY_CDMON, got nil")
	}

	t.Setenv(EnvAPIKey, "env-key")
	creds, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "env-key" || creds.BaseDomain != "" {
		t.Errorf("unexpected credentials %+v", creds)
	}
}
