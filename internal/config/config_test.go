package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: &Config{
				ListenAddr:     ":8089",
				DatabasePath:   "./data/hub.db",
				FeedsDir:       "./data/feeds",
				LogLevel:       "info",
				VerifyInterval: 5 * time.Minute,
				RequestTimeout: 10 * time.Second,
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"LISTEN_ADDR":             ":9000",
				"DATABASE_PATH":           "/tmp/hub.db",
				"FEEDS_DIR":               "/tmp/feeds",
				"LOG_LEVEL":               "debug",
				"ADMIN_USER":              "admin",
				"ADMIN_PASSWORD":          "secret",
				"VERIFY_INTERVAL_MINUTES": "2",
				"REQUEST_TIMEOUT_SECONDS": "30",
			},
			want: &Config{
				ListenAddr:     ":9000",
				DatabasePath:   "/tmp/hub.db",
				FeedsDir:       "/tmp/feeds",
				LogLevel:       "debug",
				AdminUser:      "admin",
				AdminPassword:  "secret",
				VerifyInterval: 2 * time.Minute,
				RequestTimeout: 30 * time.Second,
			},
		},
		{
			name:    "invalid verify interval",
			env:     map[string]string{"VERIFY_INTERVAL_MINUTES": "soon"},
			wantErr: true,
		},
		{
			name:    "zero verify interval",
			env:     map[string]string{"VERIFY_INTERVAL_MINUTES": "0"},
			wantErr: true,
		},
		{
			name:    "zero request timeout",
			env:     map[string]string{"REQUEST_TIMEOUT_SECONDS": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear relevant env vars
			for _, key := range []string{
				"LISTEN_ADDR", "DATABASE_PATH", "FEEDS_DIR", "LOG_LEVEL",
				"ADMIN_USER", "ADMIN_PASSWORD",
				"VERIFY_INTERVAL_MINUTES", "REQUEST_TIMEOUT_SECONDS",
			} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
