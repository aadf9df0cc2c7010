package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseFlags(t *testing.T) {
	tcases := []struct {
		name       string
		args       []string
		configFile string
		overrides  map[string]any
		err        bool
	}{
		{
			name:      "no flags",
			args:      nil,
			overrides: map[string]any{},
		},
		{
			name:       "config file only",
			args:       []string{"-config", "reveal.yaml"},
			configFile: "reveal.yaml",
			overrides:  map[string]any{},
		},
		{
			name: "explicit flags become overrides",
			args: []string{"-addr", ":9000", "-driver", "memory", "-signing-key", "c2VjcmV0", "-log-level", "debug"},
			overrides: map[string]any{
				"server.addr":      ":9000",
				"database.driver":  "memory",
				"auth.signing_key": "c2VjcmV0",
				"log.level":        "debug",
			},
		},
		{
			name: "allowed origins accumulate",
			args: []string{"-allowed-origins", "http://a.test,http://b.test", "-allowed-origins", "http://c.test"},
			overrides: map[string]any{
				"server.allowed_origins": []string{"http://a.test", "http://b.test", "http://c.test"},
			},
		},
		{
			name: "unknown flag",
			args: []string{"-nope"},
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			configFile, overrides, err := parseFlags(tc.args)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.configFile, configFile)
			assert.Equal(t, tc.overrides, overrides)
		})
	}
}
