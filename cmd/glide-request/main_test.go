package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/domain/request"
)

func writeOptions(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBuildAndDecode(t *testing.T) {
	standalone := writeOptions(t, "standalone.yaml", "addresses: [localhost:6379]\ndatabase_id: 1\nclient_name: cli\n")
	cluster := writeOptions(t, "cluster.yaml", "addresses: [node-1:7000]\nperiodic_checks: disabled\n")

	var out bytes.Buffer
	err := run(context.Background(), []string{"build", "-cluster", cluster}, nil, &out)
	require.NoError(t, err)

	line := strings.TrimSpace(out.String())
	parts := strings.Split(line, "\t")
	require.Len(t, parts, 2)
	require.Equal(t, cluster, parts[0])

	var view bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"decode", parts[1]}, nil, &view))
	var decoded requestView
	require.NoError(t, json.Unmarshal(view.Bytes(), &decoded))
	require.Equal(t, "cluster", decoded.Mode)
	require.Equal(t, []string{"node-1:7000"}, decoded.Addresses)
	require.Equal(t, "disabled", decoded.PeriodicChecks)
	require.Equal(t, request.ReadFromPreferReplica.String(), decoded.ReadFrom)

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"build", standalone, cluster}, nil, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], standalone+"\t"))
	require.True(t, strings.HasPrefix(lines[1], cluster+"\t"))

	encoded := strings.Split(lines[0], "\t")[1]
	view.Reset()
	require.NoError(t, run(context.Background(), []string{"decode"}, strings.NewReader(encoded+"\n"), &view))
	decoded = requestView{}
	require.NoError(t, json.Unmarshal(view.Bytes(), &decoded))
	require.Equal(t, "standalone", decoded.Mode)
	require.NotNil(t, decoded.DatabaseId)
	require.Equal(t, uint32(1), *decoded.DatabaseId)
	require.Equal(t, "cli", *decoded.ClientName)
}

func TestDecodeRetryStrategyKeys(t *testing.T) {
	path := writeOptions(t, "retry.yaml",
		"addresses: [localhost:6379]\nreconnect_strategy: {num_of_retries: 4, factor: 100, exponent_base: 2, jitter_percent: 10}\n")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"build", path}, nil, &out))
	encoded := strings.Split(strings.TrimSpace(out.String()), "\t")[1]

	var view bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"decode", encoded}, nil, &view))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(view.Bytes(), &raw))
	require.Equal(t, map[string]any{
		"number_of_retries": 4.0,
		"factor":            100.0,
		"exponent_base":     2.0,
		"jitter_percent":    10.0,
	}, raw["retry_strategy"])
}

func TestBuildFailsOnInvalidFile(t *testing.T) {
	good := writeOptions(t, "good.yaml", "addresses: [localhost:6379]\n")
	bad := writeOptions(t, "bad.yaml", "addresses: []\n")

	err := run(context.Background(), []string{"build", good, bad}, nil, &bytes.Buffer{})
	require.ErrorIs(t, err, request.ErrInvalidAddressList)
	require.Contains(t, err.Error(), bad)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	err := run(context.Background(), []string{"decode", "/w=="}, nil, &bytes.Buffer{})
	require.ErrorIs(t, err, request.ErrMalformedEncoding)

	err = run(context.Background(), []string{"decode", "not base64!"}, nil, &bytes.Buffer{})
	require.Error(t, err)
}

func TestUsageErrors(t *testing.T) {
	tests := [][]string{
		nil,
		{"explode"},
		{"build"},
		{"build", "-nope", "x.yaml"},
		{"decode", "a", "b"},
	}
	for _, args := range tests {
		err := run(context.Background(), args, nil, &bytes.Buffer{})
		require.ErrorIs(t, err, errUsage, "args %v", args)
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, nil, &out))
	require.True(t, strings.HasPrefix(out.String(), "glide-request "))
}

func TestPingRejectsInvalidConfig(t *testing.T) { //nolint:paralleltest // env
	t.Setenv(configPathEnv, writeOptions(t, "empty.yaml", "addresses: []\n"))

	err := run(context.Background(), []string{"ping"}, nil, &bytes.Buffer{})
	require.ErrorIs(t, err, request.ErrInvalidAddressList)

	err = run(context.Background(), []string{"ping", "-config", filepath.Join(t.TempDir(), "missing.yaml")}, nil, &bytes.Buffer{})
	require.ErrorIs(t, err, os.ErrNotExist)
}
