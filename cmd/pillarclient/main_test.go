// ABOUTME: Tests for command argument parsing and result rendering
// ABOUTME: Covers flag splitting, operation construction and pillar selection

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pillarclient/internal/config"
	"github.com/2389/pillarclient/internal/message"
	"github.com/2389/pillarclient/internal/operation"
)

func TestParseArgs(t *testing.T) {
	flags, positional, err := parseArgs([]string{"--file-id", "f1", "extra", "--size", "10"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"file-id": "f1", "size": "10"}, flags)
	assert.Equal(t, []string{"extra"}, positional)

	_, _, err = parseArgs([]string{"--file-id"})
	require.ErrorContains(t, err, "missing value for --file-id")
}

func TestBuildOperation(t *testing.T) {
	op, err := buildOperation("put", map[string]string{"file-id": "f1", "address": "http://x", "size": "12", "checksum": "ab"})
	require.NoError(t, err)
	assert.Equal(t, message.OperationPutFile, op.Type())
	assert.Equal(t, "f1", op.FileID())
	assert.Equal(t, message.PutFileRequest{FileAddress: "http://x", FileSize: 12, Checksum: "ab"}, op.RequestBody("P1"))

	op, err = buildOperation("checksums", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, message.GetChecksumsRequest{Algorithm: "SHA256"}, op.RequestBody("P1"))

	op, err = buildOperation("get", map[string]string{"file-id": "f1", "address": "http://x", "from": "P2"})
	require.NoError(t, err)
	assert.IsType(t, &operation.Get{}, op)

	for _, name := range []string{"list", "status"} {
		_, err := buildOperation(name, map[string]string{})
		require.NoError(t, err, name)
	}

	_, err = buildOperation("put", map[string]string{"file-id": "f1"})
	require.ErrorContains(t, err, "usage: put")
	_, err = buildOperation("replace", map[string]string{"file-id": "f1", "address": "a"})
	require.ErrorContains(t, err, "usage: replace")
	_, err = buildOperation("delete", map[string]string{"file-id": "f1", "size": "-3"})
	require.ErrorContains(t, err, "invalid --size")
	_, err = buildOperation("teleport", map[string]string{})
	require.Error(t, err)
}

func TestSelectPillars(t *testing.T) {
	cfg := &config.Config{Pillars: []config.PillarConfig{{ID: "a", Silent: true}, {ID: "b"}}}
	assert.Len(t, selectPillars(cfg, ""), 2)
	assert.Equal(t, []config.PillarConfig{{ID: "a", Silent: true}}, selectPillars(cfg, "a"))
	assert.Equal(t, []config.PillarConfig{{ID: "z"}}, selectPillars(cfg, "z"))
}

func TestSettingsForDefaultsContributors(t *testing.T) {
	cfg := config.Default()
	cfg.Pillars = []config.PillarConfig{{ID: "a"}, {ID: "b"}}
	assert.Equal(t, []string{"a", "b"}, settingsFor(cfg).Contributors)

	cfg.Collection.Contributors = []string{"x"}
	assert.Equal(t, []string{"x"}, settingsFor(cfg).Contributors)
}

func TestDescribeResult(t *testing.T) {
	assert.Equal(t, []string{"checksum ab"}, describeResult(message.FileResult{Checksum: "ab"}))
	assert.Equal(t, []string{"ok"}, describeResult(nil))
	assert.Equal(t, []string{"f1 SHA256:00"}, describeResult(message.ChecksumsResult{
		Algorithm: "SHA256",
		Entries:   []message.ChecksumEntry{{FileID: "f1", Checksum: "00"}},
	}))
	assert.Equal(t, []string{"(no files)"}, describeResult(message.FileIDsResult{}))
	assert.Equal(t, []string{"OK 3 file(s) stored"}, describeResult(message.StatusResult{StatusCode: "OK", Info: "3 file(s) stored"}))
}
