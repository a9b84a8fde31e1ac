package mqtt

import (
	"github.com/golang/protobuf/proto"
)

// Command requests an operation on the player.
type Command struct {
	Id   string  `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Op   string  `protobuf:"bytes,2,opt,name=op,proto3" json:"op,omitempty"`
	Args []int32 `protobuf:"zigzag32,3,rep,packed,name=args,proto3" json:"args,omitempty"`
}

func (m *Command) Reset()         { *m = Command{} }
func (m *Command) String() string { return proto.CompactTextString(m) }
func (*Command) ProtoMessage()    {}

// Reply is published for every Command.
type Reply struct {
	Id       string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Value    int32  `protobuf:"zigzag32,2,opt,name=value,proto3" json:"value,omitempty"`
	HasValue bool   `protobuf:"varint,3,opt,name=has_value,json=hasValue,proto3" json:"has_value,omitempty"`
	Error    string `protobuf:"bytes,4,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *Reply) Reset()         { *m = Reply{} }
func (m *Reply) String() string { return proto.CompactTextString(m) }
func (*Reply) ProtoMessage()    {}

// Event kinds in Event.Kind, the first are dfplayer.EventKind names.
const (
	EventKindPlayback = "playback"
)

// Event is published for device events and playback completion.
type Event struct {
	Kind    string `protobuf:"bytes,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Device  uint32 `protobuf:"varint,2,opt,name=device,proto3" json:"device,omitempty"`
	Track   uint32 `protobuf:"varint,3,opt,name=track,proto3" json:"track,omitempty"`
	Devices uint32 `protobuf:"varint,4,opt,name=devices,proto3" json:"devices,omitempty"`
	// Request is the Command.Id which started the playback.
	Request string `protobuf:"bytes,5,opt,name=request,proto3" json:"request,omitempty"`
	// Outcome of the playback: done, superseded or the error.
	Outcome string `protobuf:"bytes,6,opt,name=outcome,proto3" json:"outcome,omitempty"`
}

func (m *Event) Reset()         { *m = Event{} }
func (m *Event) String() string { return proto.CompactTextString(m) }
func (*Event) ProtoMessage()    {}
