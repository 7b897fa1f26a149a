package detector

import (
	"context"

	"github.com/example/facegate/internal/domain"
)

// Client exposes the subset of the remote face-detection service used by the
// upload pipeline.
type Client interface {
	Detect(ctx context.Context, imageBytes []byte) (domain.DetectionOutcome, error)
}
