package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/facegate/internal/auth"
	"github.com/example/facegate/internal/domain"
	"github.com/example/facegate/internal/taskrunner"
	"github.com/example/facegate/internal/usecase"
)

// RegisterRoutes wires the photo endpoints to the Gin router. Uploads are
// executed on the runner so request goroutines stay off the pipeline;
// maxUploadBytes bounds how much of a part is ever buffered.
func RegisterRoutes(router *gin.Engine, uc *usecase.PhotoUseCase, runner *taskrunner.Runner, maxUploadBytes int64, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	photos := router.Group("/photos", authMiddleware)
	photos.POST("/upload", uploadPhoto(uc, runner, maxUploadBytes))
	photos.GET("/search/:id", getPhotoByID(uc))
	photos.GET("/exists/:name", photoExists(uc))
	photos.GET("/list", listPhotos(uc))
	photos.DELETE("/delete/:id", auth.RequireRole(auth.AdminRole), deletePhotoByID(uc))
}

func uploadPhoto(uc *usecase.PhotoUseCase, runner *taskrunner.Runner, maxUploadBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.PostForm("name")
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResult("photo file is required"))
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResult("unable to open photo file"))
			return
		}
		defer src.Close()

		// One byte past the limit is enough for the pipeline to reject the
		// upload as oversized; the rest of the part is never buffered.
		data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorResult("failed to read photo file"))
			return
		}

		req := &domain.UploadRequest{
			Name:      name,
			Filename:  file.Filename,
			MediaType: mediaTypeOf(file.Header.Get("Content-Type")),
			Data:      data,
		}

		ctx := c.Request.Context()
		future := taskrunner.Submit(runner, func() (*domain.UploadResult, error) {
			return uc.UploadPhoto(ctx, req)
		})
		result, err := future.Wait(ctx)
		if err != nil {
			writeUploadError(c, name, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func getPhotoByID(uc *usecase.PhotoUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
			return
		}
		name, err := uc.GetPhotoNameByID(c.Request.Context(), id)
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "name": name})
	}
}

// photoExists answers from the existence cache; the result is advisory and
// the save path remains the authority on name uniqueness.
func photoExists(uc *usecase.PhotoUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		exists, err := uc.PhotoExists(c.Request.Context(), name)
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": name, "exists": exists})
	}
}

func listPhotos(uc *usecase.PhotoUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := uc.ListPhotoNames(c.Request.Context())
		if err != nil {
			if errors.Is(err, domain.ErrNoRecords) {
				c.Status(http.StatusNoContent)
				return
			}
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"photos": names})
	}
}

func deletePhotoByID(uc *usecase.PhotoUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
			return
		}
		if err := uc.DeletePhotoByID(c.Request.Context(), id); err != nil {
			writeLookupError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// writeUploadError maps pipeline error kinds onto the upload response shape.
func writeUploadError(c *gin.Context, name string, err error) {
	var (
		invalidInput *domain.InvalidInputError
		faceCount    *domain.FaceCountError
		conflict     *domain.NameConflictError
		detection    *domain.DetectionUnavailableError
		storage      *domain.StorageUnavailableError
	)
	switch {
	case errors.As(err, &invalidInput):
		c.JSON(http.StatusBadRequest, errorResult(invalidInput.Error()))
	case errors.As(err, &faceCount):
		c.JSON(http.StatusBadRequest, domain.UploadResult{
			Name:    name,
			Status:  domain.StatusFailed,
			Message: "face detection failed: " + faceCount.Error(),
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, errorResult(conflict.Error()))
	case errors.As(err, &detection):
		c.JSON(http.StatusInternalServerError, errorResult("photo processing error: face detection unavailable"))
	case errors.As(err, &storage):
		c.JSON(http.StatusServiceUnavailable, errorResult("storage unavailable, retry later"))
	default:
		c.JSON(http.StatusInternalServerError, errorResult("internal error"))
	}
}

func writeLookupError(c *gin.Context, err error) {
	var (
		invalidID *domain.InvalidIdentifierError
		storage   *domain.StorageUnavailableError
	)
	switch {
	case errors.As(err, &invalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidID.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
	case errors.As(err, &storage):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable, retry later"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func errorResult(message string) domain.UploadResult {
	return domain.UploadResult{Status: domain.StatusError, Message: message}
}

// mediaTypeOf strips any parameters from the declared content type.
func mediaTypeOf(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(strings.ToLower(contentType))
}
