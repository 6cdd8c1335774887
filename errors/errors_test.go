package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "Router", "Add", "transport start"))

	err := Wrap(ErrBindFailed, "Router", "Add", "transport start")
	assert.Equal(t, "Router.Add: transport start failed: udp bind failed", err.Error())
	assert.True(t, errors.Is(err, ErrBindFailed))
}

func TestWrapClassified(t *testing.T) {
	err := WrapInvalid(ErrDuplicateName, "Router", "Add", "name check")

	var ce *ClassifiedError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Router", ce.Component)
	assert.Equal(t, "Add", ce.Operation)
	assert.True(t, errors.Is(err, ErrDuplicateName))
	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))

	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
	assert.Nil(t, WrapFatal(nil, "a", "b", "c"))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"no peer", ErrNoPeer, true},
		{"deadline", context.DeadlineExceeded, true},
		{"net timeout", timeoutErr{}, true},
		{"wrapped net timeout", fmt.Errorf("read: %w", timeoutErr{}), true},
		{"unknown link", ErrUnknownLink, false},
		{"classified transient", WrapTransient(errors.New("x"), "a", "b", "c"), true},
		{"classified fatal", WrapFatal(errors.New("x"), "a", "b", "c"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrRoutingCycle))
	assert.Equal(t, ErrorFatal, Classify(net.ErrClosed))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
	assert.Equal(t, ErrorFatal, Classify(WrapFatal(ErrDeviceUnavailable, "serial", "Start", "open")))
}
