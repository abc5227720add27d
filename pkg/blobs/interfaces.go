package blobs

import "context"

type BlobReader interface {
	// Download writes the full content of the blob to destPath, replacing any existing file.
	// If no such blob exists, IsNotFound(err) is true for the returned error.
	Download(ctx context.Context, info BlobInfo, destPath string) error
}

type Blobstore interface {
	BlobReader

	// Upload uploads the file at sourcePath, overwriting any existing blob with the same name.
	Upload(ctx context.Context, sourcePath string, info BlobInfo) error

	// Delete removes the blob. Deleting a blob that does not exist is an error.
	Delete(ctx context.Context, info BlobInfo) error

	// List returns the names of every blob in the container, in the order the backend lists them.
	List(ctx context.Context, container string) ([]string, error)
}

// BlobInfo identifies a blob within a container (a bucket, for GCS).
type BlobInfo struct {
	Container string
	Name      string
}

func (i BlobInfo) String() string {
	return i.Container + "/" + i.Name
}
