package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind categorizes pipeline failures for exit codes and API payloads.
type ErrorKind string

const (
	KindMalformedInput      ErrorKind = "malformed_input"
	KindCacheUnavailable    ErrorKind = "cache_unavailable"
	KindGeocodeNotFound     ErrorKind = "geocode_not_found"
	KindGeocodeRateLimited  ErrorKind = "geocode_rate_limited"
	KindGeocodeUnavailable  ErrorKind = "geocode_unavailable"
	KindRoutingNoRoute      ErrorKind = "routing_no_route"
	KindRoutingInconsistent ErrorKind = "routing_inconsistent"
	KindRoutingUnavailable  ErrorKind = "routing_unavailable"
	KindPolylineMalformed   ErrorKind = "polyline_malformed"
	KindPackagingFailed     ErrorKind = "packaging_failed"
	KindCancelled           ErrorKind = "cancelled"
)

// Hint returns a short remediation hint for the kind.
func (k ErrorKind) Hint() string {
	switch k {
	case KindMalformedInput:
		return "check that the spreadsheet has a header row with label and address columns"
	case KindCacheUnavailable:
		return "check that the cache path is readable and writable"
	case KindGeocodeNotFound:
		return "check the address spelling or add more detail (city, country)"
	case KindGeocodeRateLimited:
		return "increase min_request_interval_ms or wait before retrying"
	case KindGeocodeUnavailable, KindRoutingUnavailable:
		return "check the provider base URL and network connectivity"
	case KindRoutingNoRoute:
		return "the provider found no route between consecutive stops; check stop order"
	case KindRoutingInconsistent:
		return "the provider returned a leg that does not match the requested endpoints"
	case KindPolylineMalformed:
		return "the provider returned truncated geometry; check polyline_precision"
	case KindPackagingFailed:
		return "check that the output path is writable"
	case KindCancelled:
		return "the run was cancelled before completion"
	default:
		return ""
	}
}

// PipelineError is a categorized failure naming the offending stop or leg.
type PipelineError struct {
	Kind ErrorKind
	Item string // e.g. "stop 2 (B)" or "leg A → B"; empty when not item-specific
	Err  error
}

func (e *PipelineError) Error() string {
	msg := string(e.Kind)
	if e.Item != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Item)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError builds a PipelineError for the given kind and item.
func NewError(kind ErrorKind, item string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Item: item, Err: err}
}

// KindOf extracts the ErrorKind from an error chain. Context cancellation
// maps to KindCancelled; anything uncategorized returns "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return ""
}
