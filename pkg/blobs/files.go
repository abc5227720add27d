package blobs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"k8s.io/klog/v2"
)

// writeToFile copies src into a pending file next to destinationPath and
// atomically replaces destinationPath with it once the whole content has
// arrived. A symlinked destination is followed and its target replaced.
// An existing destination keeps its permissions and must be writable; new
// files are created 0666 minus the umask.
func writeToFile(ctx context.Context, src io.Reader, destinationPath string) (int64, error) {
	log := klog.FromContext(ctx)

	destinationPath, err := checkWritable(destinationPath)
	if err != nil {
		return 0, err
	}

	pending, err := renameio.NewPendingFile(destinationPath,
		renameio.WithTempDir(filepath.Dir(destinationPath)),
		renameio.WithPermissions(0666),
		renameio.WithExistingPermissions(),
	)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			log.Error(err, "removing temp file", "path", pending.Name())
		}
	}()

	n, err := io.Copy(pending, src)
	if err != nil {
		return n, err
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return n, err
	}
	return n, nil
}

// checkWritable resolves symlinks in path and, when the file already exists,
// verifies it could be opened for writing. The returned path is the one to replace.
func checkWritable(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return path, nil
		}
		return "", err
	}

	f, err := os.OpenFile(resolved, os.O_WRONLY, 0)
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return resolved, nil
}
