// Package ows holds the exception codes a tiled map service reports to clients.
package ows

import (
	"errors"
	"fmt"
)

// Code is an OWS exception code.
type Code string

const (
	// InvalidParameterValue is raised for unknown or malformed request parameters.
	InvalidParameterValue Code = "InvalidParameterValue"
	// TileOutOfRange is raised when a tile column or row lies outside the matrix.
	TileOutOfRange Code = "TileOutOfRange"
	// LayerNotTiled is raised for a layer without any tile pyramid.
	LayerNotTiled Code = "LayerNotTiled"
	// NoApplicableCode wraps failures of a data source or the math provider.
	NoApplicableCode Code = "NoApplicableCode"
	// OperationNotSupported is raised for requests the service does not handle.
	OperationNotSupported Code = "OperationNotSupported"
)

// Fault is an exception reported to the client. Locator names the offending
// parameter, axis or layer.
type Fault struct {
	Code    Code
	Locator string
	Message string
	Err     error
}

func (f *Fault) Error() string {
	msg := string(f.Code)
	if f.Locator != "" {
		msg += " (" + f.Locator + ")"
	}
	if f.Message != "" {
		msg += ": " + f.Message
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Is matches faults by code and locator, so errors.Is(err, InvalidParameter("layer", "")) works.
func (f *Fault) Is(target error) bool {
	var t *Fault
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == f.Code && (t.Locator == "" || t.Locator == f.Locator)
}

func InvalidParameter(param string, format string, args ...any) *Fault {
	return &Fault{Code: InvalidParameterValue, Locator: param, Message: fmt.Sprintf(format, args...)}
}

// OutOfRange names the axis ("column" or "row") that failed.
func OutOfRange(axis string, value int64, size uint) *Fault {
	return &Fault{Code: TileOutOfRange, Locator: axis, Message: fmt.Sprintf("%d not in [0, %d)", value, size)}
}

func NotTiled(layer string) *Fault {
	return &Fault{Code: LayerNotTiled, Locator: layer, Message: "layer has no tile pyramids"}
}

func Upstream(locator string, err error) *Fault {
	return &Fault{Code: NoApplicableCode, Locator: locator, Err: err}
}

func NotSupported(operation string) *Fault {
	return &Fault{Code: OperationNotSupported, Locator: operation, Message: "operation not supported"}
}

// AsFault returns err as a Fault. Errors that are not faults become NoApplicableCode.
func AsFault(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return Upstream("", err)
}
