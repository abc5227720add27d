package blobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/stretchr/testify/require"
)

func newFakeGCS(t *testing.T, objects ...fakestorage.Object) (*GCSBlobstore, *fakestorage.Server) {
	t.Helper()
	server, err := fakestorage.NewServerWithOptions(fakestorage.Options{
		InitialObjects: objects,
		NoListener:     true,
	})
	require.NoError(t, err)
	t.Cleanup(server.Stop)

	store := &GCSBlobstore{
		NewClient: func(ctx context.Context) (*storage.Client, error) {
			return server.Client(), nil
		},
	}
	return store, server
}

func gcsObject(bucket, name, content string) fakestorage.Object {
	return fakestorage.Object{
		ObjectAttrs: fakestorage.ObjectAttrs{
			BucketName: bucket,
			Name:       name,
		},
		Content: []byte(content),
	}
}

func TestGCSUploadAndDownload(t *testing.T) {
	ctx := context.Background()
	store, server := newFakeGCS(t)
	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: "testcontainer"})

	src := filepath.Join(t.TempDir(), "dummyfile.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0644))

	info := BlobInfo{Container: "testcontainer", Name: "testblob"}
	require.NoError(t, store.Upload(ctx, src, info))

	obj, err := server.GetObject("testcontainer", "testblob")
	require.NoError(t, err)
	require.Equal(t, []byte("data"), obj.Content)

	dest := filepath.Join(t.TempDir(), "dummyfile.txt")
	require.NoError(t, store.Download(ctx, info, dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), got)
}

func TestGCSUploadOverwrites(t *testing.T) {
	ctx := context.Background()
	store, server := newFakeGCS(t, gcsObject("testcontainer", "testblob", "previous content"))

	src := filepath.Join(t.TempDir(), "dummyfile.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0644))
	require.NoError(t, store.Upload(ctx, src, BlobInfo{Container: "testcontainer", Name: "testblob"}))

	obj, err := server.GetObject("testcontainer", "testblob")
	require.NoError(t, err)
	require.Equal(t, []byte("data"), obj.Content)
}

func TestGCSDownloadMissing(t *testing.T) {
	ctx := context.Background()
	store, server := newFakeGCS(t)
	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: "testcontainer"})

	dir := t.TempDir()
	err := store.Download(ctx, BlobInfo{Container: "testcontainer", Name: "missing"}, filepath.Join(dir, "out"))
	require.Error(t, err)
	require.True(t, errors.Is(err, storage.ErrObjectNotExist), "expected ErrObjectNotExist, got %v", err)
	require.True(t, IsNotFound(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGCSDelete(t *testing.T) {
	ctx := context.Background()
	store, server := newFakeGCS(t, gcsObject("testcontainer", "testblob", "data"))

	info := BlobInfo{Container: "testcontainer", Name: "testblob"}
	require.NoError(t, store.Delete(ctx, info))

	_, err := server.GetObject("testcontainer", "testblob")
	require.Error(t, err)

	err = store.Delete(ctx, info)
	require.Error(t, err)
	require.True(t, IsNotFound(err))
}

func TestGCSList(t *testing.T) {
	ctx := context.Background()
	store, _ := newFakeGCS(t,
		gcsObject("testcontainer", "blob1", "1"),
		gcsObject("testcontainer", "blob2", "2"),
		gcsObject("othercontainer", "blob3", "3"),
	)

	names, err := store.List(ctx, "testcontainer")
	require.NoError(t, err)
	require.Equal(t, []string{"blob1", "blob2"}, names)
}

func TestGCSListEmpty(t *testing.T) {
	ctx := context.Background()
	store, server := newFakeGCS(t)
	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: "testcontainer"})

	names, err := store.List(ctx, "testcontainer")
	require.NoError(t, err)
	require.NotNil(t, names)
	require.Empty(t, names)
}
