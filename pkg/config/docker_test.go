package config

import "testing"

func TestResolveHost(t *testing.T) {
	tests := []struct {
		host     string
		inDocker bool
		want     string
	}{
		{"localhost", false, "localhost"},
		{"localhost", true, "host.docker.internal"},
		{"127.0.0.1", true, "host.docker.internal"},
		{"db.internal", true, "db.internal"},
		{"", true, ""},
	}
	for _, tt := range tests {
		if got := resolveHost(tt.host, tt.inDocker); got != tt.want {
			t.Errorf("resolveHost(%q, %v) = %q, want %q", tt.host, tt.inDocker, got, tt.want)
		}
	}
}
