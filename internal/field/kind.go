package field

import (
	"bytes"
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

// Kind is the wire tag identifying a field's value type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindBytes
	KindVector2
	KindVector3
	KindVector4
	KindQuaternion
	KindBool
	kindCount
)

var kindNames = [...]string{
	KindInvalid:    "invalid",
	KindInt8:       "int8",
	KindUint8:      "uint8",
	KindInt16:      "int16",
	KindUint16:     "uint16",
	KindInt32:      "int32",
	KindUint32:     "uint32",
	KindInt64:      "int64",
	KindUint64:     "uint64",
	KindFloat32:    "float32",
	KindFloat64:    "float64",
	KindString:     "string",
	KindBytes:      "bytes",
	KindVector2:    "vector2",
	KindVector3:    "vector3",
	KindVector4:    "vector4",
	KindQuaternion: "quaternion",
	KindBool:       "bool",
}

// Valid reports whether k names a value type this build can decode.
func (k Kind) Valid() bool {
	return k > KindInvalid && k < kindCount
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Codec binds a Go value type to its wire tag and encoding.
type Codec[T any] struct {
	kind  Kind
	write func(*wire.Queue, T)
	read  func(*wire.Queue) (T, error)
	clone func(T) T
}

// Kind returns the wire tag of the codec.
func (c Codec[T]) Kind() Kind {
	return c.kind
}

var (
	Int8       = Codec[int8]{kind: KindInt8, write: (*wire.Queue).WriteInt8, read: (*wire.Queue).ReadInt8}
	Uint8      = Codec[uint8]{kind: KindUint8, write: (*wire.Queue).WriteUint8, read: (*wire.Queue).ReadUint8}
	Int16      = Codec[int16]{kind: KindInt16, write: (*wire.Queue).WriteInt16, read: (*wire.Queue).ReadInt16}
	Uint16     = Codec[uint16]{kind: KindUint16, write: (*wire.Queue).WriteUint16, read: (*wire.Queue).ReadUint16}
	Int32      = Codec[int32]{kind: KindInt32, write: (*wire.Queue).WriteInt32, read: (*wire.Queue).ReadInt32}
	Uint32     = Codec[uint32]{kind: KindUint32, write: (*wire.Queue).WriteUint32, read: (*wire.Queue).ReadUint32}
	Int64      = Codec[int64]{kind: KindInt64, write: (*wire.Queue).WriteInt64, read: (*wire.Queue).ReadInt64}
	Uint64     = Codec[uint64]{kind: KindUint64, write: (*wire.Queue).WriteUint64, read: (*wire.Queue).ReadUint64}
	Float32    = Codec[float32]{kind: KindFloat32, write: (*wire.Queue).WriteFloat32, read: (*wire.Queue).ReadFloat32}
	Float64    = Codec[float64]{kind: KindFloat64, write: (*wire.Queue).WriteFloat64, read: (*wire.Queue).ReadFloat64}
	String     = Codec[string]{kind: KindString, write: (*wire.Queue).WriteString, read: (*wire.Queue).ReadString}
	Bytes      = Codec[[]byte]{kind: KindBytes, write: (*wire.Queue).WriteBlob, read: (*wire.Queue).ReadBlob, clone: bytes.Clone}
	Vector2    = Codec[wire.Vector2]{kind: KindVector2, write: (*wire.Queue).WriteVector2, read: (*wire.Queue).ReadVector2}
	Vector3    = Codec[wire.Vector3]{kind: KindVector3, write: (*wire.Queue).WriteVector3, read: (*wire.Queue).ReadVector3}
	Vector4    = Codec[wire.Vector4]{kind: KindVector4, write: (*wire.Queue).WriteVector4, read: (*wire.Queue).ReadVector4}
	Quaternion = Codec[wire.Quaternion]{kind: KindQuaternion, write: (*wire.Queue).WriteQuaternion, read: (*wire.Queue).ReadQuaternion}
	Bool       = Codec[bool]{kind: KindBool, write: (*wire.Queue).WriteBool, read: (*wire.Queue).ReadBool}
)

// FromDescriptor builds an empty field for a received descriptor. It returns
// false for kinds this build does not know, which lets newer peers add field
// types without breaking older ones.
func FromDescriptor(desc Descriptor, depth int) (Replicated, bool) {
	switch desc.Kind {
	case KindInt8:
		return New(desc, Int8, depth), true
	case KindUint8:
		return New(desc, Uint8, depth), true
	case KindInt16:
		return New(desc, Int16, depth), true
	case KindUint16:
		return New(desc, Uint16, depth), true
	case KindInt32:
		return New(desc, Int32, depth), true
	case KindUint32:
		return New(desc, Uint32, depth), true
	case KindInt64:
		return New(desc, Int64, depth), true
	case KindUint64:
		return New(desc, Uint64, depth), true
	case KindFloat32:
		return New(desc, Float32, depth), true
	case KindFloat64:
		return New(desc, Float64, depth), true
	case KindString:
		return New(desc, String, depth), true
	case KindBytes:
		return New(desc, Bytes, depth), true
	case KindVector2:
		return New(desc, Vector2, depth), true
	case KindVector3:
		return New(desc, Vector3, depth), true
	case KindVector4:
		return New(desc, Vector4, depth), true
	case KindQuaternion:
		return New(desc, Quaternion, depth), true
	case KindBool:
		return New(desc, Bool, depth), true
	default:
		return nil, false
	}
}

// Numeric is the set of value types that support arithmetic helpers.
type Numeric interface {
	constraints.Integer | constraints.Float
}

// Increment sets the field to its last value plus delta. A field that has
// never been set starts from zero. Concurrent increments are not lost.
func Increment[T Numeric](f *Field[T], delta T) T {
	return f.update(func(last T) T { return last + delta })
}
