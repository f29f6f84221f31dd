package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/featurestream/internal/store"
)

const parcelsCUE = `package featuretypes

featureType: parcels: paths: [
	"/parcels/id{oid}",
	"/parcels/name{queryable=title}",
	"/parcels/[id=parcel_id]addresses/id",
	"/parcels/[id=parcel_id]addresses/street",
]
`

// writeTypesDir writes the parcels feature type into a fresh directory.
func writeTypesDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parcels.cue"), []byte(parcelsCUE), 0644))
	return dir
}

// writeParcelsDB creates a database with three parcels and their addresses.
func writeParcelsDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parcels.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.Exec(ctx,
		"CREATE TABLE parcels (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE TABLE addresses (id INTEGER PRIMARY KEY, parcel_id INTEGER REFERENCES parcels(id), street TEXT)",
	))
	for _, r := range []map[string]any{
		{"id": 1, "name": "Lot A"},
		{"id": 2, "name": "Lot B"},
		{"id": 3, "name": "Lot C"},
	} {
		require.NoError(t, st.Insert(ctx, "parcels", r))
	}
	for _, r := range []map[string]any{
		{"id": 10, "parcel_id": 1, "street": "Main St"},
		{"id": 11, "parcel_id": 1, "street": "Oak St"},
		{"id": 20, "parcel_id": 2, "street": "Elm St"},
	} {
		require.NoError(t, st.Insert(ctx, "addresses", r))
	}
	return path
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}
