package minio

import (
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
)

var (
	ErrBucketNotFound    = errors.New("minio: bucket not found")
	ErrObjectNotFound    = errors.New("minio: object not found")
	ErrInvalidArgument   = errors.New("minio: invalid argument")
	ErrInvalidObjectName = errors.New("minio: invalid object name")
	// ErrClientClosed is returned by any call made after Close
	ErrClientClosed = errors.New("minio: client is closed")
)

// Error records which bucket operation failed and on what key
type Error struct {
	Op      string
	Err     error
	Bucket  string
	Object  string
	Message string
}

func (e *Error) Error() string {
	where := ""
	switch {
	case e.Bucket != "" && e.Object != "":
		where = fmt.Sprintf(" for %s/%s", e.Bucket, e.Object)
	case e.Bucket != "":
		where = " for " + e.Bucket
	}
	if e.Message != "" {
		return fmt.Sprintf("minio: %s%s failed: %s: %v", e.Op, where, e.Message, e.Err)
	}
	return fmt.Sprintf("minio: %s%s failed: %v", e.Op, where, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports a missing bucket or object, whether detected locally
// or returned by the server
func IsNotFound(err error) bool {
	if errors.Is(err, ErrBucketNotFound) || errors.Is(err, ErrObjectNotFound) {
		return true
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey":
			return true
		}
	}
	return false
}

func WrapError(op string, err error, bucket, object string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Op:     op,
		Err:    err,
		Bucket: bucket,
		Object: object,
	}
}

func WrapErrorWithMessage(op string, err error, message string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Op:      op,
		Err:     err,
		Message: message,
	}
}
