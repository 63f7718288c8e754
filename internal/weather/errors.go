package weather

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnexpectedStatus is returned for non-retryable HTTP statuses.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrOffsetOutOfRange marks a forecast day whose offset falls outside
	// 0..MaxOffset.
	ErrOffsetOutOfRange = errors.New("forecast offset out of range")
)

// UnsupportedCityError is permanent: the provider cannot serve the city.
type UnsupportedCityError struct {
	Provider Provider
	City     string
}

func (e *UnsupportedCityError) Error() string {
	return fmt.Sprintf("%s cannot serve city %q", e.Provider, e.City)
}

// TransientTransportError is a temporary upstream failure that outlasted the
// retry budget.
type TransientTransportError struct {
	Provider Provider
	City     string
	Attempts int
	Err      error
}

func (e *TransientTransportError) Error() string {
	return fmt.Sprintf("%s for %s: giving up after %d attempts: %v", e.Provider, e.City, e.Attempts, e.Err)
}

func (e *TransientTransportError) Unwrap() error { return e.Err }

// IncompleteTransferError reports a truncated response body.
type IncompleteTransferError struct {
	Provider Provider
	City     string
	Err      error
}

func (e *IncompleteTransferError) Error() string {
	return fmt.Sprintf("%s for %s: incomplete transfer: %v", e.Provider, e.City, e.Err)
}

func (e *IncompleteTransferError) Unwrap() error { return e.Err }

// AlignmentError means a ground-truth row and a forecast row were joined for
// different target days or providers.
type AlignmentError struct {
	Provider     Provider
	City         string
	TruthDate    time.Time
	ForecastDate time.Time
	Reason       string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("%s/%s: cannot align ground truth %s with forecast %s: %s",
		e.Provider, e.City, e.TruthDate.Format(DateLayout), e.ForecastDate.Format(DateLayout), e.Reason)
}
