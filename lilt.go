// Package lilt implements concrete emulation, dynamic taint tracking and
// symbolic execution over a low-level IL of machine code.
package lilt

import (
	"fmt"

	"github.com/pkg/errors"
)

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
	Width128  = 128
)

// WordSize is the size in bytes of a stack slot.
const WordSize = 8

// DefaultCallContinuationOffset is added to a call target to skip the
// callee's frame setup when stepping into a function body.
const DefaultCallContinuationOffset = 4

// DefaultStackPointer is the initial value of rsp.
const DefaultStackPointer = 0x400000

var (
	ErrSolverTimeout       = errors.New("lilt: solver timeout")
	ErrSolverCanceled      = errors.New("lilt: solver canceled")
	ErrSolverResourceLimit = errors.New("lilt: solver resource limit")
	ErrSolverUnknown       = errors.New("lilt: solver unknown error")
)

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
