package domain

// UploadRequest carries one inbound photo submission. It is built once per
// call and never mutated afterwards.
type UploadRequest struct {
	Name      string
	Filename  string
	MediaType string
	Data      []byte
}

// Face is a single detected face box with the detector's confidence.
type Face struct {
	X          int32
	Y          int32
	Width      int32
	Height     int32
	Confidence float32
}

// DetectionOutcome is the ordered face list the remote detector returned for
// one image. Immutable once produced; cache entries share it by value.
type DetectionOutcome struct {
	Faces []Face
}

// FaceCount reports how many faces the detector found.
func (o DetectionOutcome) FaceCount() int {
	return len(o.Faces)
}

// UploadStatus is the terminal status reported for an upload.
type UploadStatus string

const (
	StatusSuccess UploadStatus = "SUCCESS"
	StatusFailed  UploadStatus = "FAILED"
	StatusError   UploadStatus = "ERROR"
)

// UploadResult is the orchestrator's answer for one upload request.
type UploadResult struct {
	Name    string       `json:"name"`
	Status  UploadStatus `json:"status"`
	Message string       `json:"message"`
}
