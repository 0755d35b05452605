package service

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classbridge/classbridge-api/pkg/jobs"
	"github.com/classbridge/classbridge-api/pkg/storage"
)

// ReaperService removes uploaded files that cascade deletes left
// behind. Deletion of the database records is transactional; blob
// removal happens out of band on this queue so a storage hiccup never
// fails the delete that triggered it.
type ReaperService struct {
	queue   *jobs.Queue
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
}

// ReaperConfig tunes the reaper queue.
type ReaperConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// NewReaperService constructs the reaper and its backing queue.
func NewReaperService(store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg ReaperConfig, logger *zap.Logger) *ReaperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReaperService{storage: store, signer: signer, logger: logger}
	s.queue = jobs.NewQueue("blob-reaper", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start begins queue consumption.
func (s *ReaperService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *ReaperService) Stop() {
	s.queue.Stop()
}

// Reap enqueues the given file URLs for deletion. Enqueue failures are
// logged and dropped; the files simply stay on disk.
func (s *ReaperService) Reap(urls []string) {
	for _, url := range urls {
		if url == "" {
			continue
		}
		job := jobs.Job{ID: uuid.NewString(), Type: "delete-file", Payload: url}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue file for reaping", zap.String("url", url), zap.Error(err))
		}
	}
}

func (s *ReaperService) handle(ctx context.Context, job jobs.Job) error {
	url, ok := job.Payload.(string)
	if !ok {
		s.logger.Warn("reaper received non-string payload", zap.String("job_id", job.ID))
		return nil
	}

	// Download URLs embed a signed token as their last path segment.
	token := path.Base(url)
	_, relPath, _, err := s.signer.Parse(token, true)
	if err != nil {
		// Unparseable URLs (e.g. externally hosted files) are not ours
		// to delete.
		s.logger.Debug("skipping unrecognised file url", zap.String("url", url))
		return nil
	}

	if err := s.storage.Delete(relPath); err != nil {
		return err
	}
	s.logger.Info("reaped orphaned file", zap.String("path", relPath))
	return nil
}
