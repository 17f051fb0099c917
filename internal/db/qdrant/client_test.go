package qdrant

import (
	"testing"
	"time"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.Host != "localhost" || c.Port != 6334 || c.Timeout != 5*time.Second {
		t.Errorf("unexpected defaults %+v", c)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{Host: "qdrant", Port: 6334}, false},
		{"no host", Config{Port: 6334}, true},
		{"bad port", Config{Host: "qdrant", Port: 70000}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
