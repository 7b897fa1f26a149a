package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/facegate/internal/domain"
)

// ValidatedPhoto is a persisted photo that passed the one-face policy.
type ValidatedPhoto struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;size:255;not null"`
	Data        []byte    `gorm:"column:data"`
	ValidatedAt time.Time `gorm:"column:validated_at;not null"`
}

func (ValidatedPhoto) TableName() string {
	return "validated_photos"
}

// FaceGeometry is the single face box owned 1:1 by a validated photo. It is
// written and removed inside the photo's own transaction; there is no
// database-level cascade.
type FaceGeometry struct {
	PhotoID    int64   `gorm:"column:photo_id;primaryKey;autoIncrement:false"`
	X          int32   `gorm:"column:x;not null"`
	Y          int32   `gorm:"column:y;not null"`
	Width      int32   `gorm:"column:width;not null"`
	Height     int32   `gorm:"column:height;not null"`
	Confidence float32 `gorm:"column:confidence;not null"`
}

func (FaceGeometry) TableName() string {
	return "face_geometries"
}

// PhotoRepository is the persistence gateway for validated photos and their
// geometry. Requires the gorm connection to be opened with TranslateError so
// unique violations surface as gorm.ErrDuplicatedKey.
type PhotoRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPhotoRepository creates the gateway.
func NewPhotoRepository(db *gorm.DB, logger *zap.Logger) *PhotoRepository {
	return &PhotoRepository{db: db, logger: logger.Named("photo_repository")}
}

// AutoMigrate ensures both tables exist.
func (r *PhotoRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ValidatedPhoto{}, &FaceGeometry{})
}

// Save persists the photo bytes and the face geometry atomically: both rows
// commit or neither does. A duplicate name resolves to NameConflictError;
// any other storage fault to StorageUnavailableError.
func (r *PhotoRepository) Save(ctx context.Context, data []byte, name string, face domain.Face) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		photo := &ValidatedPhoto{
			Name:        name,
			Data:        data,
			ValidatedAt: time.Now().UTC(),
		}
		if err := tx.Create(photo).Error; err != nil {
			return err
		}
		geometry := &FaceGeometry{
			PhotoID:    photo.ID,
			X:          face.X,
			Y:          face.Y,
			Width:      face.Width,
			Height:     face.Height,
			Confidence: face.Confidence,
		}
		return tx.Create(geometry).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			r.logger.Warn("duplicate photo name", zap.String("name", name))
			return &domain.NameConflictError{Name: name}
		}
		r.logger.Error("failed to save photo", zap.String("name", name), zap.Error(err))
		return &domain.StorageUnavailableError{Err: err}
	}
	r.logger.Info("photo saved", zap.String("name", name))
	return nil
}

// Exists reports whether a photo with the given name is stored. The result
// is authoritative here; the pipeline consults it only through the cache.
func (r *PhotoRepository) Exists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ValidatedPhoto{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, &domain.StorageUnavailableError{Err: err}
	}
	return count > 0, nil
}

// FindNameByID resolves the photo name for an id.
func (r *PhotoRepository) FindNameByID(ctx context.Context, id int64) (string, error) {
	var photo ValidatedPhoto
	err := r.db.WithContext(ctx).Select("id", "name").First(&photo, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrNotFound
		}
		return "", &domain.StorageUnavailableError{Err: err}
	}
	return photo.Name, nil
}

// ListAllNames returns every stored photo name, newest first. An empty store
// is reported as ErrNoRecords rather than an empty slice.
func (r *PhotoRepository) ListAllNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&ValidatedPhoto{}).Order("id desc").Pluck("name", &names).Error
	if err != nil {
		return nil, &domain.StorageUnavailableError{Err: err}
	}
	if len(names) == 0 {
		return nil, domain.ErrNoRecords
	}
	return names, nil
}

// DeleteByID removes the photo and its geometry in one transaction. Deleting
// an absent id is not an error. The administrative check is the HTTP layer's
// concern; only the id shape is validated here.
func (r *PhotoRepository) DeleteByID(ctx context.Context, id int64) error {
	if id <= 0 {
		return &domain.InvalidIdentifierError{ID: id}
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("photo_id = ?", id).Delete(&FaceGeometry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ValidatedPhoto{}, id).Error
	})
	if err != nil {
		r.logger.Error("failed to delete photo", zap.Int64("id", id), zap.Error(err))
		return &domain.StorageUnavailableError{Err: err}
	}
	r.logger.Info("photo deleted", zap.Int64("id", id))
	return nil
}
