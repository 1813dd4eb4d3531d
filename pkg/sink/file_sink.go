package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oaiharvest/oaiharvest/pkg/errors"
	"github.com/oaiharvest/oaiharvest/pkg/metrics"
)

// FileSink writes each record to <root>/<set>/<identifier>.xml, creating
// the set directory on first use.
type FileSink struct {
	root   string
	logger *zap.Logger
}

// NewFileSink creates a sink rooted at the given output directory.
func NewFileSink(root string, logger *zap.Logger) *FileSink {
	return &FileSink{
		root:   root,
		logger: logger.With(zap.String("component", "file_sink")),
	}
}

// Persist writes the record payload. An existing file for the same
// identifier is overwritten; persisting is idempotent, not accumulating.
func (s *FileSink) Persist(record Record) error {
	dir := filepath.Join(s.root, SafeFileName(record.Set))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile,
			fmt.Sprintf("failed to create partition directory %s", dir))
	}

	path := filepath.Join(dir, SafeFileName(record.Identifier)+".xml")
	if err := os.WriteFile(path, record.Payload, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile,
			fmt.Sprintf("failed to write record %s", record.Identifier))
	}

	metrics.RecordsHarvested.WithLabelValues(record.Set).Inc()
	s.logger.Debug("record persisted",
		zap.String("identifier", record.Identifier),
		zap.String("set", record.Set),
		zap.Int("bytes", len(record.Payload)))
	return nil
}

// Close implements Sink. A FileSink holds no state between writes.
func (s *FileSink) Close() error {
	return nil
}
