package codec

import "errors"

// ErrBufferOverflow is returned when a read would run past the end of the
// supplied buffer.
var ErrBufferOverflow = errors.New("codec: buffer overflow")

// ErrUnexpectedValue is returned by Unmarshaler implementations when a
// decoded value is outside its expected domain (e.g. an invalid enum tag).
var ErrUnexpectedValue = errors.New("codec: unexpected value")
