package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var allEnvVars = []string{
	"NOTIFY_CONFIG", "NOTIFY_DATABASE_URL", "NOTIFY_HTTP_ADDR", "NOTIFY_GRPC_ADDR",
	"NOTIFY_JWT_SECRET", "NOTIFY_SERVICE_TOKEN", "NOTIFY_ALLOWED_ORIGINS",
	"NOTIFY_DISPATCH_WORKERS", "NOTIFY_DISPATCH_QUEUE",
	"NOTIFY_NATS_URL", "NOTIFY_KAFKA_BROKERS", "NOTIFY_KAFKA_TOPIC", "NOTIFY_KAFKA_GROUP_ID",
	"NOTIFY_REDIS_ADDR", "NOTIFY_REDIS_PASSWORD", "NOTIFY_REDIS_DB", "NOTIFY_CACHE_TTL",
	"NOTIFY_ARCHIVE_INTERVAL", "NOTIFY_ARCHIVE_S3_BUCKET", "NOTIFY_ARCHIVE_S3_ENDPOINT",
	"NOTIFY_ARCHIVE_S3_REGION", "NOTIFY_ARCHIVE_S3_PREFIX",
	"NOTIFY_LOG_FORMAT", "NOTIFY_LOG_LEVEL",
}

// clearAllEnv blanks every setting and runs the test from an empty
// directory so no stray .env file is picked up.
func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantGRPCAddr string
		wantHTTPAddr string
		wantNATSURL  string
	}{
		{
			name:    "MissingDatabaseURL",
			env:     map[string]string{"NOTIFY_JWT_SECRET": "s3cret"},
			wantErr: true,
		},
		{
			name:    "MissingJWTSecret",
			env:     map[string]string{"NOTIFY_DATABASE_URL": "postgres://localhost/notify"},
			wantErr: true,
		},
		{
			name: "DefaultAddresses",
			env: map[string]string{
				"NOTIFY_DATABASE_URL": "postgres://localhost/notify",
				"NOTIFY_JWT_SECRET":   "s3cret",
			},
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name: "CustomAddresses",
			env: map[string]string{
				"NOTIFY_DATABASE_URL": "postgres://db:5432/notify",
				"NOTIFY_JWT_SECRET":   "s3cret",
				"NOTIFY_GRPC_ADDR":    ":5050",
				"NOTIFY_HTTP_ADDR":    ":3000",
				"NOTIFY_NATS_URL":     "nats://localhost:4222",
			},
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantNATSURL:  "nats://localhost:4222",
		},
		{
			name: "BadWorkers",
			env: map[string]string{
				"NOTIFY_DATABASE_URL":     "postgres://localhost/notify",
				"NOTIFY_JWT_SECRET":       "s3cret",
				"NOTIFY_DISPATCH_WORKERS": "many",
			},
			wantErr: true,
		},
		{
			name: "ZeroWorkers",
			env: map[string]string{
				"NOTIFY_DATABASE_URL":     "postgres://localhost/notify",
				"NOTIFY_JWT_SECRET":       "s3cret",
				"NOTIFY_DISPATCH_WORKERS": "0",
			},
			wantErr: true,
		},
		{
			name: "BadLogFormat",
			env: map[string]string{
				"NOTIFY_DATABASE_URL": "postgres://localhost/notify",
				"NOTIFY_JWT_SECRET":   "s3cret",
				"NOTIFY_LOG_FORMAT":   "xml",
			},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("NOTIFY_DATABASE_URL", "postgres://localhost/notify")
	t.Setenv("NOTIFY_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DispatchWorkers != 8 || cfg.DispatchQueue != 256 {
		t.Errorf("dispatch = %d/%d, want 8/256", cfg.DispatchWorkers, cfg.DispatchQueue)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.ArchiveInterval != 10*time.Minute || cfg.ArchiveS3Region != "us-east-1" {
		t.Errorf("archive defaults = %v/%q", cfg.ArchiveInterval, cfg.ArchiveS3Region)
	}
	if cfg.KafkaTopic != "notify-events" || cfg.LogFormat != "text" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_ListsAndDurations(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("NOTIFY_DATABASE_URL", "postgres://localhost/notify")
	t.Setenv("NOTIFY_JWT_SECRET", "s3cret")
	t.Setenv("NOTIFY_KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("NOTIFY_CACHE_TTL", "90s")
	t.Setenv("NOTIFY_ARCHIVE_INTERVAL", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", cfg.CacheTTL)
	}
	if cfg.ArchiveInterval != 0 {
		t.Errorf("ArchiveInterval = %v, want 0", cfg.ArchiveInterval)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("NOTIFY_DATABASE_URL", "postgres://localhost/notify")
	t.Setenv("NOTIFY_JWT_SECRET", "s3cret")
	t.Setenv("NOTIFY_CACHE_TTL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearAllEnv(t)
	path := filepath.Join(t.TempDir(), "notify.toml")
	content := `
database_url = "postgres://file/notify"
jwt_secret = "from-file"
http_addr = ":7000"
dispatch_workers = 4
cache_ttl = "2m"
kafka_brokers = ["a:9092", "b:9092"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOTIFY_CONFIG", path)
	t.Setenv("NOTIFY_HTTP_ADDR", ":7001")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseURL != "postgres://file/notify" || cfg.JWTSecret != "from-file" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.HTTPAddr != ":7001" {
		t.Errorf("HTTPAddr = %q, env should win over file", cfg.HTTPAddr)
	}
	if cfg.DispatchWorkers != 4 || cfg.CacheTTL != 2*time.Minute {
		t.Errorf("workers=%d ttl=%v", cfg.DispatchWorkers, cfg.CacheTTL)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, default should survive the file", cfg.GRPCAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("NOTIFY_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearAllEnv(t)
	// clearAllEnv set the vars to "", which godotenv treats as already set;
	// unset the two the .env file provides.
	os.Unsetenv("NOTIFY_DATABASE_URL")
	os.Unsetenv("NOTIFY_JWT_SECRET")
	t.Cleanup(func() {
		os.Unsetenv("NOTIFY_DATABASE_URL")
		os.Unsetenv("NOTIFY_JWT_SECRET")
	})

	env := "NOTIFY_DATABASE_URL=memory://\nNOTIFY_JWT_SECRET=dotenv-secret\n"
	if err := os.WriteFile(".env", []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.JWTSecret != "dotenv-secret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
	if !cfg.UsesMemoryStore() {
		t.Error("memory:// should select the in-process store")
	}
}
