// Package config loads run settings from the process environment layered over
// an optional dotenv file. Loading never modifies the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/dvloznov/monzo-export/internal/format"
	"github.com/dvloznov/monzo-export/internal/storage"
	"github.com/joho/godotenv"
)

const (
	DefaultEnvFile      = ".env"
	DefaultRedirectURL  = "http://127.0.0.1/monzo"
	DefaultStorageRoot  = "data"
	DefaultAccountTypes = "uk_retail"
	DefaultSinceDays    = 89
)

// ErrMissing is returned by Require* helpers when a setting is empty.
var ErrMissing = errors.New("missing required setting")

// Config holds every setting a command may need. Credentials that the
// token exchange writes back (ACCESS_TOKEN, REFRESH_TOKEN, EXPIRY) are owned
// by auth.DotenvStore and are not part of Config.
type Config struct {
	EnvFile string

	ClientID     string
	ClientSecret string
	RedirectURL  string

	StorageKind  storage.Kind
	StorageRoot  string
	Format       format.Format
	AccountTypes []string
	SinceDays    int

	BigQueryProject string
	BigQueryDataset string

	NotionToken      string
	NotionDatabaseID string

	LogLevel string
}

// Getenv looks up one variable. os.Getenv satisfies it.
type Getenv func(key string) string

// Load reads ENV_FILE (default .env) if it exists and resolves each setting
// from the environment first, then the file, then the default.
func Load(getenv Getenv) (*Config, error) {
	envFile := getenv("ENV_FILE")
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	fileVals, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Load: reading %s: %w", envFile, err)
		}
		fileVals = map[string]string{}
	}

	lookup := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		if v := strings.TrimSpace(fileVals[key]); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		EnvFile:          envFile,
		ClientID:         lookup("CLIENT_ID", ""),
		ClientSecret:     lookup("CLIENT_SECRET", ""),
		RedirectURL:      lookup("REDIRECT_URL", DefaultRedirectURL),
		StorageRoot:      lookup("STORAGE_ROOT", DefaultStorageRoot),
		BigQueryProject:  lookup("BIGQUERY_PROJECT", ""),
		BigQueryDataset:  lookup("BIGQUERY_DATASET", ""),
		NotionToken:      lookup("NOTION_TOKEN", ""),
		NotionDatabaseID: lookup("NOTION_DATABASE_ID", ""),
		LogLevel:         lookup("LOG_LEVEL", "info"),
	}

	if cfg.StorageKind, err = storage.ParseKind(lookup("STORAGE_TYPE", string(storage.KindLocal))); err != nil {
		return nil, fmt.Errorf("Load: STORAGE_TYPE: %w", err)
	}
	if cfg.Format, err = format.ByName(lookup("FILE_FORMAT", "csv")); err != nil {
		return nil, fmt.Errorf("Load: FILE_FORMAT: %w", err)
	}

	cfg.AccountTypes = splitList(lookup("ACCOUNT_TYPES", DefaultAccountTypes))
	if len(cfg.AccountTypes) == 0 {
		return nil, fmt.Errorf("Load: ACCOUNT_TYPES must name at least one account type")
	}

	days := lookup("SINCE_DAYS", strconv.Itoa(DefaultSinceDays))
	if cfg.SinceDays, err = strconv.Atoi(days); err != nil || cfg.SinceDays <= 0 {
		return nil, fmt.Errorf("Load: SINCE_DAYS must be a positive integer, got %q", days)
	}

	return cfg, nil
}

// RequireClient checks the OAuth client settings needed to talk to Monzo.
func (c *Config) RequireClient() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// BigQueryEnabled reports whether the BigQuery mirror is configured.
func (c *Config) BigQueryEnabled() bool {
	return c.BigQueryProject != "" && c.BigQueryDataset != ""
}

// RequireNotion checks the settings needed by the Notion sync.
func (c *Config) RequireNotion() error {
	if c.NotionToken == "" || c.NotionDatabaseID == "" {
		return fmt.Errorf("%w: NOTION_TOKEN and NOTION_DATABASE_ID", ErrMissing)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
