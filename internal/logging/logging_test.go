package logging

import (
	"testing"

	"github.com/ayusman/touchtable/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{name: "info", level: "info"},
		{name: "debug", level: "debug"},
		{name: "warn", level: "warn"},
		{name: "unknown level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New("test", config.Log{Level: tt.level})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unknown level")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			logger.Debugw("hello", "level", tt.level)
		})
	}
}

func TestNewNop(t *testing.T) {
	NewNop().Infow("discarded")
}
