package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/facegate/internal/auth"
	"github.com/example/facegate/internal/detector"
	"github.com/example/facegate/internal/domain"
	"github.com/example/facegate/internal/logging"
)

// PhotoRepository defines the persistence operations needed by the pipeline.
type PhotoRepository interface {
	Save(ctx context.Context, data []byte, name string, face domain.Face) error
	Exists(ctx context.Context, name string) (bool, error)
	FindNameByID(ctx context.Context, id int64) (string, error)
	ListAllNames(ctx context.Context) ([]string, error)
	DeleteByID(ctx context.Context, id int64) error
}

// ValidationCache memoizes detection outcomes and existence checks per name.
type ValidationCache interface {
	GetOrCompute(name string, compute func() (domain.DetectionOutcome, error)) (domain.DetectionOutcome, error)
	GetOrComputeExistence(name string, check func() (bool, error)) (bool, error)
	Invalidate(name string)
	InvalidateExistence(name string)
}

// Limits are the validation constants applied before any side effect.
type Limits struct {
	MaxBytes          int64
	AllowedMediaTypes []string
}

// PhotoUseCase runs the upload pipeline: validate the request, obtain the
// detection outcome through the cache, apply the one-face acceptance policy,
// and persist the photo with its geometry. It also serves the read and
// delete operations over stored photos.
type PhotoUseCase struct {
	repo     PhotoRepository
	cache    ValidationCache
	detector detector.Client
	limits   Limits
	logger   *zap.Logger
}

// NewPhotoUseCase constructs the orchestrator.
func NewPhotoUseCase(repo PhotoRepository, cache ValidationCache, client detector.Client, limits Limits, logger *zap.Logger) *PhotoUseCase {
	return &PhotoUseCase{
		repo:     repo,
		cache:    cache,
		detector: client,
		limits:   limits,
		logger:   logger.Named("photo_usecase"),
	}
}

// UploadPhoto takes one upload request through the full pipeline. The
// detection outcome is cached under the photo name whether or not the photo
// is ultimately accepted; only the storage layer arbitrates name uniqueness.
func (uc *PhotoUseCase) UploadPhoto(ctx context.Context, req *domain.UploadRequest) (*domain.UploadResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.upload_photo", requestID)
	// Best effort: unauthenticated callers (in-process use, tests) log
	// without the subject.
	if subject, ok := auth.GetSubject(ctx); ok {
		opLogger = opLogger.With(zap.String("subject", subject))
	}

	if err := uc.validate(req); err != nil {
		opLogger.Warn("rejected invalid upload", zap.Error(err))
		return nil, err
	}

	outcome, err := uc.cache.GetOrCompute(req.Name, func() (domain.DetectionOutcome, error) {
		return uc.detector.Detect(ctx, req.Data)
	})
	if err != nil {
		opLogger.Error("face detection failed", zap.String("name", req.Name), zap.Error(err))
		return nil, err
	}

	if count := outcome.FaceCount(); count != 1 {
		if count == 0 {
			opLogger.Warn("no faces detected", zap.String("name", req.Name))
		} else {
			opLogger.Warn("multiple faces detected", zap.String("name", req.Name), zap.Int("faces", count))
		}
		return nil, &domain.FaceCountError{Count: count}
	}

	if err := uc.repo.Save(ctx, req.Data, req.Name, outcome.Faces[0]); err != nil {
		opLogger.Error("failed to persist photo", zap.String("name", req.Name), zap.Error(err))
		return nil, err
	}

	// The stored record supersedes whatever existence result was cached.
	uc.cache.InvalidateExistence(req.Name)

	opLogger.Info("photo validated and saved", zap.String("name", req.Name))
	return &domain.UploadResult{
		Name:    req.Name,
		Status:  domain.StatusSuccess,
		Message: "photo validated and saved successfully",
	}, nil
}

func (uc *PhotoUseCase) validate(req *domain.UploadRequest) error {
	if req == nil || len(req.Data) == 0 {
		return &domain.InvalidInputError{Reason: "photo payload is empty"}
	}
	if strings.TrimSpace(req.Name) == "" {
		return &domain.InvalidInputError{Reason: "name is required"}
	}
	if int64(len(req.Data)) > uc.limits.MaxBytes {
		return &domain.InvalidInputError{Reason: "photo exceeds the maximum allowed size"}
	}
	mediaType := strings.ToLower(req.MediaType)
	if !uc.mediaTypeAllowed(mediaType) {
		return &domain.InvalidInputError{Reason: "unsupported media type: " + req.MediaType}
	}
	if !extensionMatches(mediaType, req.Filename) {
		return &domain.InvalidInputError{Reason: "filename extension does not match media type"}
	}
	return nil
}

func (uc *PhotoUseCase) mediaTypeAllowed(mediaType string) bool {
	for _, allowed := range uc.limits.AllowedMediaTypes {
		if mediaType == allowed {
			return true
		}
	}
	return false
}

func extensionMatches(mediaType, filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	switch mediaType {
	case "image/jpeg":
		return ext == ".jpg" || ext == ".jpeg"
	case "image/png":
		return ext == ".png"
	}
	return false
}

// PhotoExists reports whether a photo name is taken, memoized through the
// existence cache. The answer is advisory; Save remains the arbiter.
func (uc *PhotoUseCase) PhotoExists(ctx context.Context, name string) (bool, error) {
	return uc.cache.GetOrComputeExistence(name, func() (bool, error) {
		return uc.repo.Exists(ctx, name)
	})
}

// GetPhotoNameByID resolves a stored photo's name.
func (uc *PhotoUseCase) GetPhotoNameByID(ctx context.Context, id int64) (string, error) {
	return uc.repo.FindNameByID(ctx, id)
}

// ListPhotoNames returns all stored photo names.
func (uc *PhotoUseCase) ListPhotoNames(ctx context.Context) ([]string, error) {
	return uc.repo.ListAllNames(ctx)
}

// DeletePhotoByID removes a photo and its geometry, then drops any cached
// state for the name so a re-upload starts clean. Deleting an absent id
// succeeds silently.
func (uc *PhotoUseCase) DeletePhotoByID(ctx context.Context, id int64) error {
	if id <= 0 {
		return &domain.InvalidIdentifierError{ID: id}
	}
	name, err := uc.repo.FindNameByID(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := uc.repo.DeleteByID(ctx, id); err != nil {
		return err
	}
	if name != "" {
		uc.cache.Invalidate(name)
	}
	return nil
}
