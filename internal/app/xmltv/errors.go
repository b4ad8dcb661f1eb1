package xmltv

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentTooLarge  = errors.New("document too large")
	ErrMalformedDocument = errors.New("malformed document")
	ErrTimestampFormat   = errors.New("invalid timestamp format")
)

// DocumentTooLargeError 文档超过大小上限，在解析之前返回
type DocumentTooLargeError struct {
	Size  int64 // 文档大小，未知时为-1
	Limit int64 // 大小上限
}

func (e *DocumentTooLargeError) Error() string {
	if e.Size < 0 {
		return fmt.Sprintf("document too large: exceeds the limit of %d bytes", e.Limit)
	}
	return fmt.Sprintf("document too large: %d bytes exceeds the limit of %d bytes", e.Size, e.Limit)
}

func (e *DocumentTooLargeError) Unwrap() error {
	return ErrDocumentTooLarge
}

// MalformedDocumentError 文档缺少<tv>根节点
type MalformedDocumentError struct {
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed document: %s: %v", e.Reason, e.Err)
	}
	return "malformed document: " + e.Reason
}

func (e *MalformedDocumentError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedDocument, e.Err}
	}
	return []error{ErrMalformedDocument}
}

// TimestampFormatError 时间格式错误，仅导致单个节目被跳过
type TimestampFormatError struct {
	Value  string
	Reason string
}

func (e *TimestampFormatError) Error() string {
	return fmt.Sprintf("invalid timestamp %q: %s", e.Value, e.Reason)
}

func (e *TimestampFormatError) Unwrap() error {
	return ErrTimestampFormat
}
