package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capcache/pkg/caps"
)

func testSet(features ...string) *caps.Set {
	return &caps.Set{
		Identities: []caps.Identity{{Category: "client", Type: "pc", Name: "test"}},
		Features:   features,
	}
}

func writeDatasetFile(t *testing.T, dir, algo, node string, set *caps.Set) {
	t.Helper()
	data, err := XMLCodec{}.Encode(set)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DatasetFileName(algo, node)), data, 0644))
}

func TestLookupNotFound(t *testing.T) {
	s := New("", "", XMLCodec{}, nil, nil)
	_, err := s.Lookup("sha-1", "https://example.org/#v")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommitThenLookupFromOverlay(t *testing.T) {
	// No dataset directories configured: a hit can only come from the
	// memory overlay.
	s := New("", "", XMLCodec{}, nil, nil)
	node := "https://example.org/#v1"

	s.Commit("sha-1", node, testSet("urn:a", "urn:b"))

	got, err := s.Lookup("sha-1", node)
	require.NoError(t, err)
	assert.Equal(t, node, got.Node)
	assert.Equal(t, []string{"urn:a", "urn:b"}, got.Features)

	// Lookups return copies; mutating one must not poison the overlay.
	got.Features[0] = "urn:mutated"
	again, err := s.Lookup("sha-1", node)
	require.NoError(t, err)
	assert.Equal(t, "urn:a", again.Features[0])
}

func TestLookupTierOrder(t *testing.T) {
	systemDir := t.TempDir()
	userDir := t.TempDir()
	node := "https://example.org/#v1"

	writeDatasetFile(t, systemDir, "sha-1", node, testSet("urn:system"))
	writeDatasetFile(t, userDir, "sha-1", node, testSet("urn:user"))

	s := New(systemDir, userDir, XMLCodec{}, nil, nil)

	got, err := s.Lookup("sha-1", node)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:system"}, got.Features)

	// With the system entry gone the user tier answers.
	require.NoError(t, os.Remove(filepath.Join(systemDir, DatasetFileName("sha-1", node))))
	got, err = s.Lookup("sha-1", node)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:user"}, got.Features)
}

func TestOverlayShadowsDatasets(t *testing.T) {
	systemDir := t.TempDir()
	node := "https://example.org/#v1"
	writeDatasetFile(t, systemDir, "sha-1", node, testSet("urn:system"))

	s := New(systemDir, "", XMLCodec{}, nil, nil)
	s.Commit("sha-1", node, testSet("urn:overlay"))

	got, err := s.Lookup("sha-1", node)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:overlay"}, got.Features)
}

func TestCorruptDatasetFileIsHardError(t *testing.T) {
	systemDir := t.TempDir()
	node := "https://example.org/#v1"
	path := filepath.Join(systemDir, DatasetFileName("sha-1", node))
	require.NoError(t, os.WriteFile(path, []byte("not xml at all <"), 0644))

	s := New(systemDir, "", XMLCodec{}, nil, nil)
	_, err := s.Lookup("sha-1", node)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCommitPersistsToUserDataset(t *testing.T) {
	userDir := t.TempDir()
	node := "https://example.org/#v1"

	s := New("", userDir, XMLCodec{}, nil, nil)
	s.Commit("sha-1", node, testSet("urn:a"))
	s.Close()

	data, err := os.ReadFile(filepath.Join(userDir, DatasetFileName("sha-1", node)))
	require.NoError(t, err)

	got, err := XMLCodec{}.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, node, got.Node)
	assert.Equal(t, []string{"urn:a"}, got.Features)
}

type failingCodec struct {
	XMLCodec
}

func (failingCodec) Encode(*caps.Set) ([]byte, error) {
	return nil, errors.New("encode exploded")
}

func TestFailedPersistenceLeavesNoFile(t *testing.T) {
	userDir := t.TempDir()
	node := "https://example.org/#v1"

	s := New("", userDir, failingCodec{}, nil, nil)
	s.Commit("sha-1", node, testSet("urn:a"))
	s.Close()

	// The overlay entry is unaffected by the background failure.
	got, err := s.Lookup("sha-1", node)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:a"}, got.Features)

	// Neither a final file nor a temporary remains.
	entries, err := os.ReadDir(userDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDatasetFileName(t *testing.T) {
	name := DatasetFileName("sha-1", "http://example.com/caps#q07=")
	assert.Equal(t, "sha-1_http%3A%2F%2Fexample.com%2Fcaps%23q07%3D.xml", name)
}

func TestDatasetFileNameSafeCharacters(t *testing.T) {
	assert.Equal(t, "sha-1_AZaz09-._~.xml", DatasetFileName("sha-1", "AZaz09-._~"))
}
