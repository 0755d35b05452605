package service

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
	"github.com/classbridge/classbridge-api/pkg/storage"
)

// UploadConfig bounds accepted uploads.
type UploadConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	URLPrefix        string
}

// UploadResult describes a stored file.
type UploadResult struct {
	FileURL   string    `json:"file_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadService stores uploaded files and issues signed download URLs.
// Records only ever reference files by these URLs; the blob itself is
// addressed by the token embedded in them.
type UploadService struct {
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	config  UploadConfig
	logger  *zap.Logger
}

// NewUploadService constructs UploadService.
func NewUploadService(store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg UploadConfig, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{storage: store, signer: signer, config: cfg, logger: logger}
}

// Store persists an uploaded file and returns its signed download URL.
func (s *UploadService) Store(header *multipart.FileHeader, uploaderID string) (*UploadResult, error) {
	if s.config.MaxFileSizeBytes > 0 && header.Size > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds maximum size")
	}
	if len(s.config.AllowedMIMEs) > 0 {
		contentType := header.Header.Get("Content-Type")
		if !s.mimeAllowed(contentType) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s not allowed", contentType))
		}
	}

	src, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	defer src.Close() //nolint:errcheck

	fileID := uuid.NewString()
	relPath := filepath.Join(uploaderID, fileID+sanitizeExt(header.Filename))
	if _, err := s.storage.SaveStream(relPath, src); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	token, expiresAt, err := s.signer.Generate(fileID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	return &UploadResult{
		FileURL:   strings.TrimRight(s.config.URLPrefix, "/") + "/files/" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Open validates a download token and returns the backing file.
func (s *UploadService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "invalid or expired file link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "file not found")
	}
	return file, filepath.Base(relPath), nil
}

func (s *UploadService) mimeAllowed(contentType string) bool {
	for _, allowed := range s.config.AllowedMIMEs {
		if strings.EqualFold(strings.TrimSpace(allowed), contentType) {
			return true
		}
	}
	return false
}

// sanitizeExt keeps a recognisable file extension while dropping the
// rest of the user-supplied name.
func sanitizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 {
		return ""
	}
	return ext
}
