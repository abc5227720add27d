package blobs

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"
)

// GCSBlobstore reads and writes blobs in Google Cloud Storage, treating the
// container of a BlobInfo as the bucket name.
type GCSBlobstore struct {
	// NewClient builds the storage client used by a single operation.
	// If nil, storage.NewClient is called with ClientOptions.
	NewClient func(ctx context.Context) (*storage.Client, error)

	ClientOptions []option.ClientOption
}

var _ Blobstore = (*GCSBlobstore)(nil)

func (j *GCSBlobstore) newClient(ctx context.Context) (*storage.Client, error) {
	if j.NewClient != nil {
		return j.NewClient(ctx)
	}
	return storage.NewClient(ctx, j.ClientOptions...)
}

func gcsURL(info BlobInfo) string {
	return "gs://" + info.Container + "/" + info.Name
}

func (j *GCSBlobstore) Upload(ctx context.Context, sourcePath string, info BlobInfo) error {
	log := klog.FromContext(ctx)

	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	client, err := j.newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	startedAt := time.Now()
	w := client.Bucket(info.Container).Object(info.Name).NewWriter(ctx)
	n, err := io.Copy(w, src)
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	log.V(2).Info("uploaded blob to GCS", "source", sourcePath, "url", gcsURL(info), "bytes", n, "duration", time.Since(startedAt))
	return nil
}

func (j *GCSBlobstore) Download(ctx context.Context, info BlobInfo, destinationPath string) error {
	log := klog.FromContext(ctx)

	client, err := j.newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	startedAt := time.Now()
	r, err := client.Bucket(info.Container).Object(info.Name).NewReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	n, err := writeToFile(ctx, r, destinationPath)
	if err != nil {
		return err
	}

	log.V(2).Info("downloaded blob from GCS", "url", gcsURL(info), "destination", destinationPath, "bytes", n, "duration", time.Since(startedAt))
	return nil
}

func (j *GCSBlobstore) Delete(ctx context.Context, info BlobInfo) error {
	client, err := j.newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Bucket(info.Container).Object(info.Name).Delete(ctx); err != nil {
		return err
	}

	klog.FromContext(ctx).V(2).Info("deleted blob from GCS", "url", gcsURL(info))
	return nil
}

func (j *GCSBlobstore) List(ctx context.Context, container string) ([]string, error) {
	client, err := j.newClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	names := []string{}
	it := client.Bucket(container).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}

	klog.FromContext(ctx).V(2).Info("listed blobs in GCS", "bucket", container, "count", len(names))
	return names, nil
}
