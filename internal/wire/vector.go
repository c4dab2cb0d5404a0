package wire

// Vector2 is a two-component single-precision vector.
type Vector2 struct {
	X, Y float32
}

// Vector3 is a three-component single-precision vector.
type Vector3 struct {
	X, Y, Z float32
}

// Vector4 is a four-component single-precision vector.
type Vector4 struct {
	X, Y, Z, W float32
}

// Quaternion is a rotation stored as (X, Y, Z, W).
type Quaternion struct {
	X, Y, Z, W float32
}

func (q *Queue) WriteVector2(v Vector2) {
	q.WriteFloat32(v.X)
	q.WriteFloat32(v.Y)
}

func (q *Queue) ReadVector2() (Vector2, error) {
	b, err := q.next(8)
	if err != nil {
		return Vector2{}, err
	}
	r := NewQueue(b)
	x, _ := r.ReadFloat32()
	y, _ := r.ReadFloat32()
	return Vector2{X: x, Y: y}, nil
}

func (q *Queue) WriteVector3(v Vector3) {
	q.WriteFloat32(v.X)
	q.WriteFloat32(v.Y)
	q.WriteFloat32(v.Z)
}

func (q *Queue) ReadVector3() (Vector3, error) {
	b, err := q.next(12)
	if err != nil {
		return Vector3{}, err
	}
	r := NewQueue(b)
	x, _ := r.ReadFloat32()
	y, _ := r.ReadFloat32()
	z, _ := r.ReadFloat32()
	return Vector3{X: x, Y: y, Z: z}, nil
}

func (q *Queue) WriteVector4(v Vector4) {
	q.writeFour(v.X, v.Y, v.Z, v.W)
}

func (q *Queue) ReadVector4() (Vector4, error) {
	x, y, z, w, err := q.readFour()
	return Vector4{X: x, Y: y, Z: z, W: w}, err
}

func (q *Queue) WriteQuaternion(v Quaternion) {
	q.writeFour(v.X, v.Y, v.Z, v.W)
}

func (q *Queue) ReadQuaternion() (Quaternion, error) {
	x, y, z, w, err := q.readFour()
	return Quaternion{X: x, Y: y, Z: z, W: w}, err
}

func (q *Queue) writeFour(x, y, z, w float32) {
	q.WriteFloat32(x)
	q.WriteFloat32(y)
	q.WriteFloat32(z)
	q.WriteFloat32(w)
}

func (q *Queue) readFour() (x, y, z, w float32, err error) {
	b, err := q.next(16)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	r := NewQueue(b)
	x, _ = r.ReadFloat32()
	y, _ = r.ReadFloat32()
	z, _ = r.ReadFloat32()
	w, _ = r.ReadFloat32()
	return x, y, z, w, nil
}
