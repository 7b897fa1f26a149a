package grpcclient

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/facegate/internal/domain"
	"github.com/example/facegate/internal/facedetectpb"
)

type fakeDetectionServer struct {
	faces []facedetectpb.Face
	delay time.Duration
	err   error
}

func (s *fakeDetectionServer) DetectFaces(ctx context.Context, req *facedetectpb.ImageRequest) (*facedetectpb.FaceDetectionResponse, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &facedetectpb.FaceDetectionResponse{Faces: s.faces}, nil
}

func startFakeServer(t *testing.T, srv *fakeDetectionServer) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer(grpc.ForceServerCodec(facedetectpb.Codec{}))
	facedetectpb.RegisterFaceDetectionServer(server, srv)
	go server.Serve(listener) //nolint:errcheck
	t.Cleanup(server.Stop)

	conn, err := grpc.Dial(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDetectReturnsOrderedFaces(t *testing.T) {
	faces := []facedetectpb.Face{
		{X: 10, Y: 20, Width: 30, Height: 40, Confidence: 0.95},
		{X: 50, Y: 60, Width: 70, Height: 80, Confidence: 0.85},
	}
	conn := startFakeServer(t, &fakeDetectionServer{faces: faces})
	client := NewFromConn(conn, 5*time.Second, zap.NewNop())

	outcome, err := client.Detect(context.Background(), []byte("image-bytes"))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if outcome.FaceCount() != 2 {
		t.Fatalf("expected 2 faces, got %d", outcome.FaceCount())
	}
	first := outcome.Faces[0]
	if first != (domain.Face{X: 10, Y: 20, Width: 30, Height: 40, Confidence: 0.95}) {
		t.Fatalf("unexpected first face: %+v", first)
	}
}

func TestDetectFailsClosedOnDeadline(t *testing.T) {
	conn := startFakeServer(t, &fakeDetectionServer{delay: time.Second})
	client := NewFromConn(conn, 50*time.Millisecond, zap.NewNop())

	_, err := client.Detect(context.Background(), []byte("image-bytes"))
	var unavailable *domain.DetectionUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected DetectionUnavailableError, got %v", err)
	}
	if unavailable.StatusCode != codes.DeadlineExceeded.String() {
		t.Fatalf("expected DeadlineExceeded, got %s", unavailable.StatusCode)
	}
	if unavailable.Unwrap() == nil {
		t.Fatal("expected the original cause to be preserved")
	}
}

func TestDetectWrapsRemoteStatus(t *testing.T) {
	conn := startFakeServer(t, &fakeDetectionServer{err: status.Error(codes.Internal, "decode failed")})
	client := NewFromConn(conn, time.Second, zap.NewNop())

	_, err := client.Detect(context.Background(), []byte("image-bytes"))
	var unavailable *domain.DetectionUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected DetectionUnavailableError, got %v", err)
	}
	if unavailable.StatusCode != codes.Internal.String() {
		t.Fatalf("expected Internal, got %s", unavailable.StatusCode)
	}
}

func TestDetectHonorsCallerContext(t *testing.T) {
	conn := startFakeServer(t, &fakeDetectionServer{delay: time.Second})
	client := NewFromConn(conn, 5*time.Second, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Detect(ctx, []byte("image-bytes"))
	var unavailable *domain.DetectionUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected DetectionUnavailableError, got %v", err)
	}
}
