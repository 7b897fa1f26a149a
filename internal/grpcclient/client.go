package grpcclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/example/facegate/internal/detector"
	"github.com/example/facegate/internal/domain"
	"github.com/example/facegate/internal/facedetectpb"
	"github.com/example/facegate/internal/logging"
)

// Transport-level resilience only; the pipeline never re-invokes Detect.
const retryServiceConfig = `{
	"methodConfig": [{
		"name": [{"service": "` + facedetectpb.ServiceName + `"}],
		"retryPolicy": {
			"maxAttempts": 3,
			"initialBackoff": "0.1s",
			"maxBackoff": "1s",
			"backoffMultiplier": 2,
			"retryableStatusCodes": ["UNAVAILABLE"]
		}
	}]
}`

// Options tunes the detection channel and per-call behavior.
type Options struct {
	CallDeadline  time.Duration
	KeepAliveTime time.Duration
}

// DialFaceDetector opens the long-lived channel to the face detection
// service and returns a ready-to-use client. The connection is shared by all
// pipeline invocations; close it at shutdown.
func DialFaceDetector(ctx context.Context, addr string, opts Options, logger *zap.Logger) (detector.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    opts.KeepAliveTime,
			Timeout: 10 * time.Second,
		}),
		grpc.WithDefaultServiceConfig(retryServiceConfig),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_face_detector", "", err)
		logger.Error("failed to dial face detector", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	logger.Info("face detection channel established", zap.String("addr", addr))
	return NewFromConn(conn, opts.CallDeadline, logger), conn, nil
}

// NewFromConn wraps an existing connection; used by in-process tests.
func NewFromConn(conn *grpc.ClientConn, callDeadline time.Duration, logger *zap.Logger) detector.Client {
	return &faceDetector{conn: conn, callDeadline: callDeadline, logger: logger.Named("face_detector")}
}

type faceDetector struct {
	conn         *grpc.ClientConn
	callDeadline time.Duration
	logger       *zap.Logger
}

// Detect sends the image for face detection under the hard per-call deadline.
// Every transport fault, deadline expiry included, surfaces as one
// DetectionUnavailableError carrying the remote status code and cause.
func (d *faceDetector) Detect(ctx context.Context, imageBytes []byte) (domain.DetectionOutcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.callDeadline)
	defer cancel()

	req := &facedetectpb.ImageRequest{Image: imageBytes}
	resp := &facedetectpb.FaceDetectionResponse{}
	err := d.conn.Invoke(callCtx, facedetectpb.DetectFacesMethod, req, resp, grpc.ForceCodec(facedetectpb.Codec{}))
	if err != nil {
		code := status.Code(err)
		d.logger.Error("face detection call failed",
			zap.String("status_code", code.String()),
			zap.Int("image_bytes", len(imageBytes)),
			zap.Error(err))
		return domain.DetectionOutcome{}, &domain.DetectionUnavailableError{StatusCode: code.String(), Err: err}
	}

	outcome := domain.DetectionOutcome{Faces: make([]domain.Face, 0, len(resp.Faces))}
	for _, f := range resp.Faces {
		outcome.Faces = append(outcome.Faces, domain.Face{
			X:          f.X,
			Y:          f.Y,
			Width:      f.Width,
			Height:     f.Height,
			Confidence: f.Confidence,
		})
	}
	d.logger.Debug("face detection completed", zap.Int("faces", outcome.FaceCount()))
	return outcome, nil
}
