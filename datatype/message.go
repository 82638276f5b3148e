package datatype

import "time"

// Message is implemented by every value exchanged across a link. Kind reports
// the dynamic type tag used for port compatibility; Sequence orders messages
// originating from one producer and is what multi-input nodes align on.
type Message interface {
	Kind() Kind
	Sequence() int64
}

// Payloader is implemented by messages carrying an opaque byte payload.
type Payloader interface {
	Payload() []byte
}

// Buffer is the root message type: a raw payload plus bookkeeping shared by
// all derived kinds.
type Buffer struct {
	Data      []byte
	Seq       int64
	Timestamp time.Time
}

func (b *Buffer) Kind() Kind      { return KindBuffer }
func (b *Buffer) Sequence() int64 { return b.Seq }
func (b *Buffer) Payload() []byte { return b.Data }

// Time returns the capture timestamp.
func (b *Buffer) Time() time.Time { return b.Timestamp }

// ImgFrame is a raw video frame.
type ImgFrame struct {
	Buffer
	Width  int
	Height int
	// Instance distinguishes which source produced the frame when a node
	// exposes several (color, mono, ...).
	Instance int
}

func (f *ImgFrame) Kind() Kind { return KindImgFrame }

// Profile is the codec an EncodedFrame was produced with.
type Profile int

const (
	ProfileJPEG Profile = iota
	ProfileAVC
	ProfileHEVC
)

func (p Profile) String() string {
	switch p {
	case ProfileJPEG:
		return "JPEG"
	case ProfileAVC:
		return "AVC"
	case ProfileHEVC:
		return "HEVC"
	default:
		return "Unknown"
	}
}

// FrameType classifies an encoded frame within its group of pictures.
type FrameType int

const (
	FrameTypeI FrameType = iota
	FrameTypeP
	FrameTypeB
	FrameTypeUnknown
)

// EncodedFrame is a compressed video frame.
type EncodedFrame struct {
	Buffer
	Width    int
	Height   int
	Profile  Profile
	Type     FrameType
	Bitrate  int
	Quality  int
	Lossless bool
}

func (f *EncodedFrame) Kind() Kind { return KindEncodedFrame }

// NNData carries the output tensor bytes of an inference stage.
type NNData struct {
	Buffer
	Layers []string
}

func (d *NNData) Kind() Kind { return KindNNData }

// Detection is a single detected region with a confidence score.
type Detection struct {
	Label      int
	Confidence float32
	XMin, YMin float32
	XMax, YMax float32
}

// ImgDetections is a set of detections for one frame.
type ImgDetections struct {
	Buffer
	Detections []Detection
}

func (d *ImgDetections) Kind() Kind { return KindImgDetections }

// SpatialImgDetections extends ImgDetections with depth coordinates.
type SpatialImgDetections struct {
	ImgDetections
	X, Y, Z []float32
}

func (d *SpatialImgDetections) Kind() Kind { return KindSpatialImgDetections }

// IMUData is a batch of inertial measurements.
type IMUData struct {
	Buffer
	Acceleration [3]float32
	Gyroscope    [3]float32
}

func (d *IMUData) Kind() Kind { return KindIMUData }

// MessageGroup bundles one message per named input, produced by
// synchronization nodes.
type MessageGroup struct {
	Seq     int64
	Members map[string]Message
}

func (g *MessageGroup) Kind() Kind      { return KindMessageGroup }
func (g *MessageGroup) Sequence() int64 { return g.Seq }

// Get returns the member recorded under name, or nil.
func (g *MessageGroup) Get(name string) Message {
	return g.Members[name]
}
