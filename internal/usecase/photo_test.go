package usecase

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/facegate/internal/auth"
	"github.com/example/facegate/internal/cache"
	"github.com/example/facegate/internal/domain"
)

type savedPhoto struct {
	name string
	data []byte
	face domain.Face
}

type stubRepo struct {
	mu        sync.Mutex
	saved     []savedPhoto
	saveErrs  []error
	exists    bool
	existsErr error
	findName  string
	findErr   error
	names     []string
	listErr   error
	deleted   []int64
	deleteErr error
}

func (s *stubRepo) Save(ctx context.Context, data []byte, name string, face domain.Face) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saveErrs) > 0 {
		err := s.saveErrs[0]
		s.saveErrs = s.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	s.saved = append(s.saved, savedPhoto{name: name, data: data, face: face})
	return nil
}

func (s *stubRepo) Exists(ctx context.Context, name string) (bool, error) {
	return s.exists, s.existsErr
}

func (s *stubRepo) FindNameByID(ctx context.Context, id int64) (string, error) {
	if s.findErr != nil {
		return "", s.findErr
	}
	return s.findName, nil
}

func (s *stubRepo) ListAllNames(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.names, nil
}

func (s *stubRepo) DeleteByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

// stubCache passes computations straight through and records invalidations.
type stubCache struct {
	invalidated          []string
	existenceInvalidated []string
}

func (s *stubCache) GetOrCompute(name string, compute func() (domain.DetectionOutcome, error)) (domain.DetectionOutcome, error) {
	return compute()
}

func (s *stubCache) GetOrComputeExistence(name string, check func() (bool, error)) (bool, error) {
	return check()
}

func (s *stubCache) Invalidate(name string) {
	s.invalidated = append(s.invalidated, name)
}

func (s *stubCache) InvalidateExistence(name string) {
	s.existenceInvalidated = append(s.existenceInvalidated, name)
}

type stubDetector struct {
	outcome domain.DetectionOutcome
	err     error
	calls   atomic.Int32
	delay   time.Duration
}

func (s *stubDetector) Detect(ctx context.Context, imageBytes []byte) (domain.DetectionOutcome, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return domain.DetectionOutcome{}, s.err
	}
	return s.outcome, nil
}

func testLimits() Limits {
	return Limits{
		MaxBytes:          5 * 1024 * 1024,
		AllowedMediaTypes: []string{"image/jpeg", "image/png"},
	}
}

func oneFaceOutcome() domain.DetectionOutcome {
	return domain.DetectionOutcome{Faces: []domain.Face{{X: 10, Y: 20, Width: 30, Height: 40, Confidence: 0.95}}}
}

func validRequest() *domain.UploadRequest {
	return &domain.UploadRequest{
		Name:      "alice",
		Filename:  "alice.jpg",
		MediaType: "image/jpeg",
		Data:      []byte("jpeg-bytes"),
	}
}

func TestUploadPhotoPersistsSingleFace(t *testing.T) {
	repo := &stubRepo{}
	c := &stubCache{}
	det := &stubDetector{outcome: oneFaceOutcome()}
	uc := NewPhotoUseCase(repo, c, det, testLimits(), zap.NewNop())

	result, err := uc.UploadPhoto(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", result.Status)
	}
	if result.Name != "alice" {
		t.Fatalf("unexpected name in result: %s", result.Name)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("expected exactly one saved photo, got %d", len(repo.saved))
	}
	saved := repo.saved[0]
	if saved.name != "alice" || !bytes.Equal(saved.data, []byte("jpeg-bytes")) {
		t.Fatalf("unexpected saved record: %+v", saved)
	}
	if saved.face != (domain.Face{X: 10, Y: 20, Width: 30, Height: 40, Confidence: 0.95}) {
		t.Fatalf("unexpected geometry: %+v", saved.face)
	}
	if len(c.existenceInvalidated) != 1 || c.existenceInvalidated[0] != "alice" {
		t.Fatalf("expected the existence entry to be invalidated, got %v", c.existenceInvalidated)
	}
}

func TestUploadLogsAuthenticatedSubject(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := auth.WithSubject(context.Background(), "user-1")

	t.Run("persistence", func(t *testing.T) {
		uc := NewPhotoUseCase(&stubRepo{}, &stubCache{}, &stubDetector{outcome: oneFaceOutcome()}, testLimits(), zap.New(core))
		if _, err := uc.UploadPhoto(ctx, validRequest()); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		entries := logs.FilterMessage("photo validated and saved").All()
		if len(entries) != 1 {
			t.Fatalf("expected one save log entry, got %d", len(entries))
		}
		if got := entries[0].ContextMap()["subject"]; got != "user-1" {
			t.Fatalf("expected subject on the save log, got %v", got)
		}
	})

	t.Run("rejection", func(t *testing.T) {
		uc := NewPhotoUseCase(&stubRepo{}, &stubCache{}, &stubDetector{}, testLimits(), zap.New(core))
		if _, err := uc.UploadPhoto(ctx, validRequest()); err == nil {
			t.Fatal("expected a face-count rejection")
		}
		entries := logs.FilterMessage("no faces detected").All()
		if len(entries) != 1 {
			t.Fatalf("expected one rejection log entry, got %d", len(entries))
		}
		if got := entries[0].ContextMap()["subject"]; got != "user-1" {
			t.Fatalf("expected subject on the rejection log, got %v", got)
		}
	})

	t.Run("anonymous caller still succeeds", func(t *testing.T) {
		uc := NewPhotoUseCase(&stubRepo{}, &stubCache{}, &stubDetector{outcome: oneFaceOutcome()}, testLimits(), zap.New(core))
		if _, err := uc.UploadPhoto(context.Background(), validRequest()); err != nil {
			t.Fatalf("missing subject must not fail the request, got %v", err)
		}
	})
}

func TestUploadPhotoRejectsZeroFaces(t *testing.T) {
	repo := &stubRepo{}
	det := &stubDetector{outcome: domain.DetectionOutcome{}}
	uc := NewPhotoUseCase(repo, &stubCache{}, det, testLimits(), zap.NewNop())

	_, err := uc.UploadPhoto(context.Background(), validRequest())
	var faceErr *domain.FaceCountError
	if !errors.As(err, &faceErr) {
		t.Fatalf("expected FaceCountError, got %v", err)
	}
	if faceErr.Count != 0 {
		t.Fatalf("expected count 0, got %d", faceErr.Count)
	}
	if faceErr.Error() != "no faces detected" {
		t.Fatalf("unexpected message: %s", faceErr.Error())
	}
	if len(repo.saved) != 0 {
		t.Fatal("no record must be persisted for a rejected photo")
	}
}

func TestUploadPhotoRejectsMultipleFaces(t *testing.T) {
	outcome := domain.DetectionOutcome{Faces: []domain.Face{{X: 1}, {X: 2}, {X: 3}}}
	repo := &stubRepo{}
	uc := NewPhotoUseCase(repo, &stubCache{}, &stubDetector{outcome: outcome}, testLimits(), zap.NewNop())

	_, err := uc.UploadPhoto(context.Background(), validRequest())
	var faceErr *domain.FaceCountError
	if !errors.As(err, &faceErr) {
		t.Fatalf("expected FaceCountError, got %v", err)
	}
	if faceErr.Count != 3 {
		t.Fatalf("expected count 3, got %d", faceErr.Count)
	}
	if faceErr.Error() != "multiple faces detected: 3" {
		t.Fatalf("unexpected message: %s", faceErr.Error())
	}
	if len(repo.saved) != 0 {
		t.Fatal("no record must be persisted for a rejected photo")
	}
}

func TestUploadPhotoValidatesInput(t *testing.T) {
	cases := []struct {
		name string
		req  *domain.UploadRequest
	}{
		{"empty payload", &domain.UploadRequest{Name: "a", Filename: "a.jpg", MediaType: "image/jpeg"}},
		{"blank name", &domain.UploadRequest{Name: "   ", Filename: "a.jpg", MediaType: "image/jpeg", Data: []byte("x")}},
		{"oversized payload", &domain.UploadRequest{Name: "a", Filename: "a.jpg", MediaType: "image/jpeg", Data: make([]byte, 5*1024*1024+1)}},
		{"disallowed media type", &domain.UploadRequest{Name: "a", Filename: "a.gif", MediaType: "image/gif", Data: []byte("x")}},
		{"extension mismatch", &domain.UploadRequest{Name: "a", Filename: "a.png", MediaType: "image/jpeg", Data: []byte("x")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubRepo{}
			det := &stubDetector{outcome: oneFaceOutcome()}
			uc := NewPhotoUseCase(repo, &stubCache{}, det, testLimits(), zap.NewNop())

			_, err := uc.UploadPhoto(context.Background(), tc.req)
			var invalid *domain.InvalidInputError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
			if det.calls.Load() != 0 {
				t.Fatal("detector must not be invoked for invalid input")
			}
			if len(repo.saved) != 0 {
				t.Fatal("nothing must be persisted for invalid input")
			}
		})
	}
}

func TestUploadPhotoPropagatesDetectionFailure(t *testing.T) {
	repo := &stubRepo{}
	det := &stubDetector{err: &domain.DetectionUnavailableError{StatusCode: "DeadlineExceeded", Err: context.DeadlineExceeded}}
	uc := NewPhotoUseCase(repo, &stubCache{}, det, testLimits(), zap.NewNop())

	_, err := uc.UploadPhoto(context.Background(), validRequest())
	var unavailable *domain.DetectionUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected DetectionUnavailableError, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatal("no record must be persisted when detection fails")
	}
}

func TestUploadPhotoSurfacesNameConflict(t *testing.T) {
	repo := &stubRepo{saveErrs: []error{&domain.NameConflictError{Name: "alice"}}}
	c := &stubCache{}
	uc := NewPhotoUseCase(repo, c, &stubDetector{outcome: oneFaceOutcome()}, testLimits(), zap.NewNop())

	_, err := uc.UploadPhoto(context.Background(), validRequest())
	var conflict *domain.NameConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected NameConflictError, got %v", err)
	}
	if len(c.existenceInvalidated) != 0 {
		t.Fatal("existence entry must survive a failed save")
	}
}

func TestConcurrentUploadsShareOneDetection(t *testing.T) {
	repo := &stubRepo{}
	det := &stubDetector{outcome: oneFaceOutcome(), delay: 20 * time.Millisecond}
	validationCache := cache.NewValidationCache(100, time.Hour)
	uc := NewPhotoUseCase(repo, validationCache, det, testLimits(), zap.NewNop())

	const callers = 8
	var wg sync.WaitGroup
	wg.Add(callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = uc.UploadPhoto(context.Background(), validRequest())
		}(i)
	}
	wg.Wait()

	if got := det.calls.Load(); got != 1 {
		t.Fatalf("expected detect to be invoked once across concurrent uploads, got %d", got)
	}
	// The save step is not serialized by the cache; exactly one caller may
	// win, but every participant must have reached the acceptance check.
	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	if successes != callers {
		t.Fatalf("stub repo has no uniqueness constraint; every caller should succeed, got %d", successes)
	}
}

func TestPhotoExistsIsMemoized(t *testing.T) {
	repo := &stubRepo{exists: true}
	validationCache := cache.NewValidationCache(100, time.Hour)
	uc := NewPhotoUseCase(repo, validationCache, &stubDetector{}, testLimits(), zap.NewNop())

	for i := 0; i < 3; i++ {
		exists, err := uc.PhotoExists(context.Background(), "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !exists {
			t.Fatal("expected alice to exist")
		}
	}

	repo.exists = false
	exists, err := uc.PhotoExists(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatal("cached existence must hold until invalidation or TTL expiry")
	}
}

func TestDeletePhotoRejectsInvalidID(t *testing.T) {
	repo := &stubRepo{}
	uc := NewPhotoUseCase(repo, &stubCache{}, &stubDetector{}, testLimits(), zap.NewNop())

	for _, id := range []int64{-1, 0} {
		err := uc.DeletePhotoByID(context.Background(), id)
		var invalid *domain.InvalidIdentifierError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidIdentifierError for id %d, got %v", id, err)
		}
	}
	if len(repo.deleted) != 0 {
		t.Fatal("nothing must be deleted for an invalid id")
	}
}

func TestDeletePhotoInvalidatesCachedName(t *testing.T) {
	repo := &stubRepo{findName: "alice"}
	c := &stubCache{}
	uc := NewPhotoUseCase(repo, c, &stubDetector{}, testLimits(), zap.NewNop())

	if err := uc.DeletePhotoByID(context.Background(), 7); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != 7 {
		t.Fatalf("expected id 7 deleted, got %v", repo.deleted)
	}
	if len(c.invalidated) != 1 || c.invalidated[0] != "alice" {
		t.Fatalf("expected cache invalidation for alice, got %v", c.invalidated)
	}
}

func TestDeletePhotoToleratesAbsentRecord(t *testing.T) {
	repo := &stubRepo{findErr: domain.ErrNotFound}
	c := &stubCache{}
	uc := NewPhotoUseCase(repo, c, &stubDetector{}, testLimits(), zap.NewNop())

	if err := uc.DeletePhotoByID(context.Background(), 42); err != nil {
		t.Fatalf("expected delete-if-exists semantics, got %v", err)
	}
	if len(c.invalidated) != 0 {
		t.Fatal("no cache entry to invalidate for an absent record")
	}
}
