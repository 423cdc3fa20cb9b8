// Package rpc serves the functions of a host scope over gRPC. The service
// is described by a proto schema parsed at startup and its messages are
// dynamic, so no generated code is involved; host values travel as a
// recursive Value message that mirrors the tagged value protocol.
package rpc

import (
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/funvibe/gobridge/pkg/value"
)

const (
	schemaFile  = "gobridge/bridge.proto"
	ServiceName = "gobridge.Bridge"
)

// AnyKind is reported for parameters without a declared type.
const AnyKind value.ID = -1

const schemaSource = `syntax = "proto3";

package gobridge;

// Value is a tagged host value. kind is the protocol tag; Map entries are
// stored in elems as alternating keys and values.
message Value {
  int32 kind = 1;
  bool b = 2;
  int64 i = 3;
  double f = 4;
  string s = 5;
  bytes buf = 6;
  repeated Value elems = 7;
}

message CallRequest {
  string function = 1;
  repeated Value args = 2;
}

message CallResponse {
  Value result = 1;
}

message ListRequest {}

message FunctionInfo {
  string name = 1;
  string signature = 2;
  repeated int32 param_kinds = 3;
  bool variadic = 4;
}

message ListResponse {
  repeated FunctionInfo functions = 1;
}

service Bridge {
  rpc Call(CallRequest) returns (CallResponse);
  rpc List(ListRequest) returns (ListResponse);
}
`

// Schema holds the parsed descriptors of the Bridge service.
type Schema struct {
	service *desc.ServiceDescriptor

	value        *desc.MessageDescriptor
	callRequest  *desc.MessageDescriptor
	callResponse *desc.MessageDescriptor
	listRequest  *desc.MessageDescriptor
	listResponse *desc.MessageDescriptor
	functionInfo *desc.MessageDescriptor
}

var (
	schemaOnce sync.Once
	schema     *Schema
	schemaErr  error
)

// LoadSchema parses the service schema once per process.
func LoadSchema() (*Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = parseSchema()
	})
	return schema, schemaErr
}

func parseSchema() (*Schema, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{schemaFile: schemaSource}),
	}
	fds, err := parser.ParseFiles(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", schemaFile, err)
	}
	fd := fds[0]

	s := &Schema{service: fd.FindService(ServiceName)}
	if s.service == nil {
		return nil, fmt.Errorf("%s: service %s not found", schemaFile, ServiceName)
	}
	for name, dst := range map[string]**desc.MessageDescriptor{
		"Value":        &s.value,
		"CallRequest":  &s.callRequest,
		"CallResponse": &s.callResponse,
		"ListRequest":  &s.listRequest,
		"ListResponse": &s.listResponse,
		"FunctionInfo": &s.functionInfo,
	} {
		md := fd.FindMessage("gobridge." + name)
		if md == nil {
			return nil, fmt.Errorf("%s: message %s not found", schemaFile, name)
		}
		*dst = md
	}

	elems := s.value.FindFieldByName("elems")
	if elems == nil || !elems.IsRepeated() || elems.GetType() != descriptorpb.FieldDescriptorProto_TYPE_MESSAGE {
		return nil, fmt.Errorf("%s: Value.elems must be a repeated message field", schemaFile)
	}
	return s, nil
}

// Methods returns the service's method names.
func (s *Schema) Methods() []string {
	var names []string
	for _, m := range s.service.GetMethods() {
		names = append(names, m.GetName())
	}
	return names
}

// EncodeValue converts v to a Value message. Objects, classes, functions
// and pointers only exist inside the process and are rejected.
func (s *Schema) EncodeValue(v *value.Value) (*dynamic.Message, error) {
	m := dynamic.NewMessage(s.value)
	id := value.TypeID(v)
	if err := m.TrySetFieldByName("kind", int32(id)); err != nil {
		return nil, err
	}

	var err error
	switch id {
	case value.Bool:
		err = m.TrySetFieldByName("b", value.ToBool(v))
	case value.Char:
		err = m.TrySetFieldByName("i", int64(value.ToChar(v)))
	case value.Short:
		err = m.TrySetFieldByName("i", int64(value.ToShort(v)))
	case value.Int:
		err = m.TrySetFieldByName("i", int64(value.ToInt(v)))
	case value.Long:
		err = m.TrySetFieldByName("i", value.ToLong(v))
	case value.Float:
		err = m.TrySetFieldByName("f", float64(value.ToFloat(v)))
	case value.Double:
		err = m.TrySetFieldByName("f", value.ToDouble(v))
	case value.String:
		err = m.TrySetFieldByName("s", value.ToString(v))
	case value.Buffer:
		err = m.TrySetFieldByName("buf", append([]byte(nil), value.ToBuffer(v)...))
	case value.Array:
		err = s.addElems(m, value.ToArray(v))
	case value.Map:
		for _, p := range value.ToMap(v) {
			if err = s.addElems(m, value.ToArray(p)); err != nil {
				break
			}
		}
	case value.Null:
	default:
		return nil, fmt.Errorf("%s values cannot leave the process", id)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", id, err)
	}
	return m, nil
}

func (s *Schema) addElems(m *dynamic.Message, elems []*value.Value) error {
	for _, el := range elems {
		em, err := s.EncodeValue(el)
		if err != nil {
			return err
		}
		if err := m.TryAddRepeatedFieldByName("elems", em); err != nil {
			return err
		}
	}
	return nil
}

// DecodeValue converts a Value message to a new host value owned by the
// caller.
func (s *Schema) DecodeValue(m *dynamic.Message) (*value.Value, error) {
	kind, _ := field[int32](m, "kind")
	id := value.ID(kind)
	switch id {
	case value.Bool:
		b, _ := field[bool](m, "b")
		return value.CreateBool(b), nil
	case value.Char, value.Short, value.Int, value.Long:
		i, _ := field[int64](m, "i")
		switch id {
		case value.Char:
			return value.CreateChar(int8(i)), nil
		case value.Short:
			return value.CreateShort(int16(i)), nil
		case value.Int:
			return value.CreateInt(int32(i)), nil
		}
		return value.CreateLong(i), nil
	case value.Float:
		f, _ := field[float64](m, "f")
		return value.CreateFloat(float32(f)), nil
	case value.Double:
		f, _ := field[float64](m, "f")
		return value.CreateDouble(f), nil
	case value.String:
		str, _ := field[string](m, "s")
		return value.CreateString(str), nil
	case value.Buffer:
		buf, _ := field[[]byte](m, "buf")
		return value.CreateBuffer(buf), nil
	case value.Null:
		return value.CreateNull(), nil
	case value.Array, value.Map:
		elems, err := s.decodeElems(m)
		if err != nil {
			return nil, err
		}
		if id == value.Array {
			return value.CreateArray(elems), nil
		}
		if len(elems)%2 != 0 {
			releaseAll(elems)
			return nil, fmt.Errorf("map with %d elements", len(elems))
		}
		pairs := make([]*value.Value, 0, len(elems)/2)
		for i := 0; i < len(elems); i += 2 {
			pairs = append(pairs, value.Pair(elems[i], elems[i+1]))
		}
		return value.CreateMap(pairs), nil
	}
	return nil, fmt.Errorf("kind %d cannot be received", kind)
}

func (s *Schema) decodeElems(m *dynamic.Message) ([]*value.Value, error) {
	raw, _ := field[[]any](m, "elems")
	out := make([]*value.Value, 0, len(raw))
	for _, r := range raw {
		em, ok := r.(*dynamic.Message)
		if !ok {
			releaseAll(out)
			return nil, fmt.Errorf("element is %T", r)
		}
		v, err := s.DecodeValue(em)
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// field reads a field of m, reporting false when it is missing or has
// another type.
func field[T any](m *dynamic.Message, name string) (T, bool) {
	var zero T
	raw, err := m.TryGetFieldByName(name)
	if err != nil {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

func releaseAll(vs []*value.Value) {
	for _, v := range vs {
		v.Release()
	}
}
