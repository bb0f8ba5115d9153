// Package report converts run reports into their wire form and publishes
// them over MQTT.
package report

import (
	"encoding/json"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/mtkflash/pkg/flasher"
)

// FlashReport is the serializable result of a run.
type FlashReport struct {
	Host       string           `protobuf:"bytes,1,opt,name=host,proto3" json:"host,omitempty"`
	StartedMs  int64            `protobuf:"varint,2,opt,name=started_ms,proto3" json:"started_ms,omitempty"`
	DurationMs int64            `protobuf:"varint,3,opt,name=duration_ms,proto3" json:"duration_ms,omitempty"`
	Outcome    string           `protobuf:"bytes,4,opt,name=outcome,proto3" json:"outcome,omitempty"`
	ExitCode   int32            `protobuf:"varint,5,opt,name=exit_code,proto3" json:"exit_code"`
	Retries    int32            `protobuf:"varint,6,opt,name=retries,proto3" json:"retries"`
	Segments   []*SegmentReport `protobuf:"bytes,7,rep,name=segments,proto3" json:"segments,omitempty"`
	ReleaseErr string           `protobuf:"bytes,8,opt,name=release_err,proto3" json:"release_err,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *FlashReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *FlashReport) Reset() { *m = FlashReport{} }

// String implements proto.Message.
func (m *FlashReport) String() string { return proto.CompactTextString(m) }

// SegmentReport is the serializable result of a segment.
type SegmentReport struct {
	Name       string   `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Selector   string   `protobuf:"bytes,2,opt,name=selector,proto3" json:"selector,omitempty"`
	Image      string   `protobuf:"bytes,3,opt,name=image,proto3" json:"image,omitempty"`
	Outcome    string   `protobuf:"bytes,4,opt,name=outcome,proto3" json:"outcome,omitempty"`
	Phase      string   `protobuf:"bytes,5,opt,name=phase,proto3" json:"phase,omitempty"`
	Error      string   `protobuf:"bytes,6,opt,name=error,proto3" json:"error,omitempty"`
	Warnings   []string `protobuf:"bytes,7,rep,name=warnings,proto3" json:"warnings,omitempty"`
	Retries    int32    `protobuf:"varint,8,opt,name=retries,proto3" json:"retries"`
	DurationMs int64    `protobuf:"varint,9,opt,name=duration_ms,proto3" json:"duration_ms,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *SegmentReport) ProtoMessage() {}

// Reset implements proto.Message.
func (m *SegmentReport) Reset() { *m = SegmentReport{} }

// String implements proto.Message.
func (m *SegmentReport) String() string { return proto.CompactTextString(m) }

func millis(d time.Duration) int64 {
	return int64(d / time.Millisecond)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// FromRun converts a run report.
func FromRun(host string, r *flasher.Report) *FlashReport {
	outcome := r.Outcome()
	rep := &FlashReport{
		Host:       host,
		StartedMs:  r.Started.UnixNano() / int64(time.Millisecond),
		DurationMs: millis(r.Duration),
		Outcome:    outcome.String(),
		ExitCode:   int32(outcome.ExitCode()),
		ReleaseErr: errString(r.ReleaseErr),
	}
	for _, res := range r.Segments {
		seg := &SegmentReport{
			Name:       res.Segment.Name,
			Selector:   res.Segment.Selector,
			Image:      res.Segment.Image,
			Outcome:    res.Outcome.String(),
			Phase:      res.Phase.String(),
			Error:      errString(res.Err),
			Retries:    int32(res.Retries),
			DurationMs: millis(res.Duration),
		}
		for _, w := range res.Warnings {
			seg.Warnings = append(seg.Warnings, w.Error())
		}
		if seg.Retries > rep.Retries {
			rep.Retries = seg.Retries
		}
		rep.Segments = append(rep.Segments, seg)
	}
	return rep
}

// Encode encodes the report in protobuf.
func (m *FlashReport) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// JSON encodes the report in JSON.
func (m *FlashReport) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Decode decodes a protobuf encoded report.
func Decode(data []byte) (*FlashReport, error) {
	var rep FlashReport
	if err := proto.Unmarshal(data, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
