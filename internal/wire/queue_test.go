package wire

import (
	"encoding/hex"
	"math"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueUint32ThenString(t *testing.T) {
	q := &Queue{}
	q.WriteUint32(42)
	q.WriteString("Hi")

	g := goldie.New(t)
	g.Assert(t, "uint32_then_string", []byte(hex.EncodeToString(q.Bytes())))

	v, err := q.ReadUint32()
	require.NoError(t, err)
	s, err := q.ReadString()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)
	assert.Equal(t, "Hi", s)
	assert.True(t, q.Empty())
}

func TestQueuePrimitiveRoundTrip(t *testing.T) {
	q := &Queue{}
	q.WriteUint8(0xfe)
	q.WriteInt8(-7)
	q.WriteBool(true)
	q.WriteUint16(0xbeef)
	q.WriteInt16(-1234)
	q.WriteUint32(math.MaxUint32)
	q.WriteInt32(math.MinInt32)
	q.WriteUint64(math.MaxUint64)
	q.WriteInt64(-99)
	q.WriteFloat32(3.25)
	q.WriteFloat64(-0.125)
	q.WriteVector2(Vector2{X: 1, Y: 2})
	q.WriteVector3(Vector3{X: 1, Y: 2, Z: 3})
	q.WriteVector4(Vector4{X: 1, Y: 2, Z: 3, W: 4})
	q.WriteQuaternion(Quaternion{W: 1})
	q.WriteBlob([]byte{1, 2, 3})

	u8, err := q.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xfe), u8)
	i8, _ := q.ReadInt8()
	assert.Equal(t, int8(-7), i8)
	b, _ := q.ReadBool()
	assert.True(t, b)
	u16, _ := q.ReadUint16()
	assert.Equal(t, uint16(0xbeef), u16)
	i16, _ := q.ReadInt16()
	assert.Equal(t, int16(-1234), i16)
	u32, _ := q.ReadUint32()
	assert.Equal(t, uint32(math.MaxUint32), u32)
	i32, _ := q.ReadInt32()
	assert.Equal(t, int32(math.MinInt32), i32)
	u64, _ := q.ReadUint64()
	assert.Equal(t, uint64(math.MaxUint64), u64)
	i64, _ := q.ReadInt64()
	assert.Equal(t, int64(-99), i64)
	f32, _ := q.ReadFloat32()
	assert.Equal(t, float32(3.25), f32)
	f64, _ := q.ReadFloat64()
	assert.Equal(t, -0.125, f64)
	v2, _ := q.ReadVector2()
	assert.Equal(t, Vector2{X: 1, Y: 2}, v2)
	v3, _ := q.ReadVector3()
	assert.Equal(t, Vector3{X: 1, Y: 2, Z: 3}, v3)
	v4, _ := q.ReadVector4()
	assert.Equal(t, Vector4{X: 1, Y: 2, Z: 3, W: 4}, v4)
	quat, _ := q.ReadQuaternion()
	assert.Equal(t, Quaternion{W: 1}, quat)
	blob, err := q.ReadBlob()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, blob)
	assert.True(t, q.Empty())
}

func TestQueueLittleEndian(t *testing.T) {
	q := &Queue{}
	q.WriteUint16(0x0102)
	q.WriteUint32(0x03040506)
	assert.Equal(t, []byte{0x02, 0x01, 0x06, 0x05, 0x04, 0x03}, q.Bytes())
}

func TestQueueStringTruncatedOnWrite(t *testing.T) {
	q := &Queue{}
	q.WriteString(strings.Repeat("a", MaxStringLength+10))

	s, err := q.ReadString()
	require.NoError(t, err)
	assert.Len(t, s, MaxStringLength)
	assert.True(t, q.Empty())
}

func TestQueueBlobTruncatedOnWrite(t *testing.T) {
	q := &Queue{}
	q.WriteBlob(make([]byte, MaxBlobLength+100))
	q.WriteUint8(9)

	blob, err := q.ReadBlob()
	require.NoError(t, err)
	assert.Len(t, blob, MaxBlobLength)
	tail, err := q.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(9), tail)
}

func TestQueueBlobOversizedDeclarationRejected(t *testing.T) {
	q := &Queue{}
	q.WriteUint32(MaxBlobLength + 1)
	q.Write(make([]byte, MaxBlobLength+1))
	before := q.Len()

	_, err := q.ReadBlob()
	require.ErrorIs(t, err, ErrBlobTooLarge)
	assert.Equal(t, before, q.Len(), "nothing is consumed")
}

func TestQueueShortReads(t *testing.T) {
	q := NewQueue([]byte{1, 2})
	_, err := q.ReadUint32()
	require.ErrorIs(t, err, ErrShortBuffer)
	assert.Equal(t, 2, q.Len(), "failed read must not consume")

	q = &Queue{}
	q.WriteUint16(10)
	q.Write([]byte("abc"))
	_, err = q.ReadString()
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestQueueFrames(t *testing.T) {
	q := &Queue{}
	mark := q.BeginFrame()
	q.WriteUint16(7)
	q.WriteString("x")
	q.EndFrame(mark)
	q.WriteFrame([]byte{0xaa})
	q.WriteUint8(0xff)

	first, err := q.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, 5, first.Len())
	v, _ := first.ReadUint16()
	assert.Equal(t, uint16(7), v)

	second, err := q.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa}, second.Bytes())

	tail, err := q.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xff), tail)

	bad := &Queue{}
	bad.WriteUint32(100)
	_, err = bad.ReadFrame()
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestQueuePeekAndSkip(t *testing.T) {
	q := NewQueue([]byte{4, 5, 6})
	b, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, byte(4), b)
	assert.Equal(t, 3, q.Len())
	require.NoError(t, q.Skip(2))
	require.ErrorIs(t, q.Skip(2), ErrShortBuffer)
	v, _ := q.ReadUint8()
	assert.Equal(t, uint8(6), v)
	_, err = q.Peek()
	require.ErrorIs(t, err, ErrShortBuffer)

	q.Reset()
	assert.True(t, q.Empty())
}
