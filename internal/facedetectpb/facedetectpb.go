// Package facedetectpb carries the protobuf wire contract of the face
// detection service:
//
//	service FaceDetectionService {
//	  rpc DetectFaces(ImageRequest) returns (FaceDetectionResponse);
//	}
//	message ImageRequest { bytes image = 1; }
//	message FaceDetectionResponse { repeated Face faces = 1; }
//	message Face { int32 x = 1; int32 y = 2; int32 width = 3;
//	               int32 height = 4; float confidence = 5; }
//
// Messages are marshalled by hand with protowire so no generated code is
// needed; the bytes on the wire are identical to the generated form.
package facedetectpb

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "facedetection.FaceDetectionService"

// DetectFacesMethod is the full method path of the detection RPC.
const DetectFacesMethod = "/" + ServiceName + "/DetectFaces"

// ImageRequest is the detection request: the raw encoded image.
type ImageRequest struct {
	Image []byte
}

// Face is one detected face box.
type Face struct {
	X          int32
	Y          int32
	Width      int32
	Height     int32
	Confidence float32
}

// FaceDetectionResponse is the ordered list of detected faces.
type FaceDetectionResponse struct {
	Faces []Face
}

func (m *ImageRequest) marshal() ([]byte, error) {
	var buf []byte
	if len(m.Image) > 0 {
		buf = protowire.AppendTag(buf, 1, protowire.BytesType)
		buf = protowire.AppendBytes(buf, m.Image)
	}
	return buf, nil
}

func (m *ImageRequest) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			value, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Image = append([]byte(nil), value...)
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
	}
	return nil
}

func (f *Face) marshal() []byte {
	var buf []byte
	if f.X != 0 {
		buf = protowire.AppendTag(buf, 1, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(int64(f.X)))
	}
	if f.Y != 0 {
		buf = protowire.AppendTag(buf, 2, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(int64(f.Y)))
	}
	if f.Width != 0 {
		buf = protowire.AppendTag(buf, 3, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(int64(f.Width)))
	}
	if f.Height != 0 {
		buf = protowire.AppendTag(buf, 4, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(int64(f.Height)))
	}
	if f.Confidence != 0 {
		buf = protowire.AppendTag(buf, 5, protowire.Fixed32Type)
		buf = protowire.AppendFixed32(buf, math.Float32bits(f.Confidence))
	}
	return buf
}

func (f *Face) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num >= 1 && num <= 4 && typ == protowire.VarintType:
			value, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			switch num {
			case 1:
				f.X = int32(value)
			case 2:
				f.Y = int32(value)
			case 3:
				f.Width = int32(value)
			case 4:
				f.Height = int32(value)
			}
		case num == 5 && typ == protowire.Fixed32Type:
			value, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			f.Confidence = math.Float32frombits(value)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *FaceDetectionResponse) marshal() ([]byte, error) {
	var buf []byte
	for i := range m.Faces {
		buf = protowire.AppendTag(buf, 1, protowire.BytesType)
		buf = protowire.AppendBytes(buf, m.Faces[i].marshal())
	}
	return buf, nil
}

func (m *FaceDetectionResponse) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			value, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			var face Face
			if err := face.unmarshal(value); err != nil {
				return err
			}
			m.Faces = append(m.Faces, face)
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
	}
	return nil
}

type wireMessage interface {
	marshal() ([]byte, error)
	unmarshal([]byte) error
}

// Codec (de)serializes the messages above. It reports the standard "proto"
// subtype so the peer sees ordinary protobuf framing; pass it per call with
// grpc.ForceCodec, or to a test server with grpc.ForceServerCodec.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("facedetectpb: cannot marshal %T", v)
	}
	return m.marshal()
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("facedetectpb: cannot unmarshal into %T", v)
	}
	return m.unmarshal(data)
}

func (Codec) Name() string { return "proto" }

// FaceDetectionServer is the server half of the contract, used by in-process
// test servers.
type FaceDetectionServer interface {
	DetectFaces(context.Context, *ImageRequest) (*FaceDetectionResponse, error)
}

// ServiceDesc allows registering a FaceDetectionServer on a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FaceDetectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "DetectFaces",
			Handler:    detectFacesHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterFaceDetectionServer registers srv on s. The server must use Codec
// via grpc.ForceServerCodec.
func RegisterFaceDetectionServer(s grpc.ServiceRegistrar, srv FaceDetectionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func detectFacesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ImageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FaceDetectionServer).DetectFaces(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DetectFacesMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FaceDetectionServer).DetectFaces(ctx, req.(*ImageRequest))
	}
	return interceptor(ctx, in, info, handler)
}
