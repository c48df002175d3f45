package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

// Environment variables consulted when a setting is missing from the
// credentials source.
const (
	EnvAPIKey = "API_KEY_CDMON"
	EnvDomain = "DOMAIN_CDMON"

	// EnvCredentialsPath overrides DefaultCredentialsPath.
	EnvCredentialsPath     = "CDMON_CREDENTIALS_PATH"
	DefaultCredentialsPath = "configs/cdmon.yaml"

	// certbot credentials files prefix every key with the plugin name.
	certbotPrefix = "dns_cdmon_"
)

// Credentials holds the CDmon account settings.
type Credentials struct {
	APIKey     string
	BaseDomain string
	Zones      []string
	APIURL     string
	Timeout    time.Duration
}

// yamlCredentials is the on-disk YAML layout.
type yamlCredentials struct {
	APIKey     string   `yaml:"api_key"`
	BaseDomain string   `yaml:"base_domain"`
	Domain     string   `yaml:"domain"`
	Zones      []string `yaml:"zones"`
	APIURL     string   `yaml:"api_url"`
	Timeout    string   `yaml:"timeout"`
}

// LoadCredentials reads credentials from the path in CDMON_CREDENTIALS_PATH,
// defaulting to "configs/cdmon.yaml".
func LoadCredentials() (*Credentials, error) {
	path := os.Getenv(EnvCredentialsPath)
	if path == "" {
		path = DefaultCredentialsPath
	}
	return LoadCredentialsFromPath(path)
}

// LoadCredentialsFromPath reads a YAML (.yaml, .yml) or certbot INI file.
// ${ENV_VAR} references in values are expanded once; single-quoted INI
// values are taken literally.
func LoadCredentialsFromPath(path string) (*Credentials, error) {
	var settings map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		var yc yamlCredentials
		if err := yaml.Unmarshal(data, &yc); err != nil {
			return nil, fmt.Errorf("parsing credentials file: %w", err)
		}
		settings = yc.settings()
		for k, v := range settings {
			settings[k] = os.ExpandEnv(v)
		}
	default:
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		// godotenv expands ${VAR} in unquoted and double-quoted values.
		settings = normalizeKeys(values)
	}
	return fromSettings(settings)
}

// FromEnv builds credentials from API_KEY_CDMON and DOMAIN_CDMON only.
func FromEnv() (*Credentials, error) {
	return fromSettings(map[string]string{})
}

func (yc yamlCredentials) settings() map[string]string {
	s := map[string]string{
		"api_key":     yc.APIKey,
		"base_domain": yc.BaseDomain,
		"zones":       strings.Join(yc.Zones, ","),
		"api_url":     yc.APIURL,
		"timeout":     yc.Timeout,
	}
	if s["base_domain"] == "" {
		s["base_domain"] = yc.Domain
	}
	return s
}

// normalizeKeys lowercases keys, drops the certbot "dns_cdmon_" prefix and
// maps "domain" to "base_domain".
func normalizeKeys(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		k = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(k)), certbotPrefix)
		if k == "domain" {
			k = "base_domain"
		}
		if _, ok := out[k]; ok && v == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func fromSettings(settings map[string]string) (*Credentials, error) {
	creds := &Credentials{
		APIKey:     strings.TrimSpace(settings["api_key"]),
		BaseDomain: strings.TrimSpace(settings["base_domain"]),
		APIURL:     strings.TrimSpace(settings["api_url"]),
	}

	if creds.APIKey == "" {
		creds.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("credentials: missing required setting 'api_key' (or %s)", EnvAPIKey)
	}
	if creds.BaseDomain == "" {
		creds.BaseDomain = strings.TrimSpace(os.Getenv(EnvDomain))
	}

	for _, z := range strings.Split(settings["zones"], ",") {
		if z = strings.TrimSpace(z); z != "" {
			creds.Zones = append(creds.Zones, z)
		}
	}

	if raw := strings.TrimSpace(settings["timeout"]); raw != "" {
		d, err := parseTimeout(raw)
		if err != nil {
			return nil, fmt.Errorf("credentials: invalid timeout %q: %w", raw, err)
		}
		creds.Timeout = d
	}

	return creds, nil
}

// parseTimeout accepts a Go duration ("30s") or a number of seconds ("30").
func parseTimeout(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("must not be negative")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}
