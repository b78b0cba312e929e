package vybiumwasmcontinuations

import (
	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
)

// Error is a categorized continuation error
type Error = errs.Error

// ErrorCode is the category of an Error
type ErrorCode = errs.Code

const (
	CodeUnknown       = errs.CodeUnknown
	CodeInvalidConfig = errs.CodeInvalidConfig
	CodeInvalidInput  = errs.CodeInvalidInput
	CodeSoundness     = errs.CodeSoundness
	CodeResource      = errs.CodeResource
	CodeConsistency   = errs.CodeConsistency
)

// Sentinels for errors.Is
var (
	ErrInvalidConfig = errs.ErrInvalidConfig
	ErrInvalidInput  = errs.ErrInvalidInput
	ErrSoundness     = errs.ErrSoundness
	ErrResource      = errs.ErrResource
	ErrConsistency   = errs.ErrConsistency
)

// CodeOf returns the category of err, CodeUnknown when it carries none
func CodeOf(err error) ErrorCode {
	return errs.CodeOf(err)
}
