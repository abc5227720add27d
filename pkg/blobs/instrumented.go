package blobs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// InstrumentedBlobstore records the duration and outcome of every call to the
// wrapped Blobstore. Errors are returned as-is.
type InstrumentedBlobstore struct {
	inner           Blobstore
	requestDuration *prometheus.HistogramVec
}

var _ Blobstore = (*InstrumentedBlobstore)(nil)

// NewInstrumentedBlobstore wraps inner and registers its metrics with reg.
func NewInstrumentedBlobstore(inner Blobstore, backend string, reg prometheus.Registerer) *InstrumentedBlobstore {
	return &InstrumentedBlobstore{
		inner: inner,
		requestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "blobhelper",
			Name:        "request_duration_seconds",
			Help:        "Time spent doing blob storage requests.",
			Buckets:     prometheus.ExponentialBuckets(0.005, 4, 8),
			ConstLabels: prometheus.Labels{"backend": backend},
		}, []string{"operation", "status_code"}),
	}
}

func (s *InstrumentedBlobstore) observe(operation string, f func() error) error {
	startedAt := time.Now()
	err := f()
	s.requestDuration.WithLabelValues(operation, statusCode(err)).Observe(time.Since(startedAt).Seconds())
	return err
}

func statusCode(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

func (s *InstrumentedBlobstore) Upload(ctx context.Context, sourcePath string, info BlobInfo) error {
	return s.observe("upload", func() error {
		return s.inner.Upload(ctx, sourcePath, info)
	})
}

func (s *InstrumentedBlobstore) Download(ctx context.Context, info BlobInfo, destPath string) error {
	return s.observe("download", func() error {
		return s.inner.Download(ctx, info, destPath)
	})
}

func (s *InstrumentedBlobstore) Delete(ctx context.Context, info BlobInfo) error {
	return s.observe("delete", func() error {
		return s.inner.Delete(ctx, info)
	})
}

func (s *InstrumentedBlobstore) List(ctx context.Context, container string) ([]string, error) {
	var names []string
	err := s.observe("list", func() error {
		var err error
		names, err = s.inner.List(ctx, container)
		return err
	})
	return names, err
}
