package x509util

import (
	"fmt"
)

// ExtensionError reports that a specific named extension could not be
// encoded or appended to the certificate request.
type ExtensionError struct {
	// Extension is the human-readable name of the extension that failed,
	// e.g. "subject key id".
	Extension string
	Err       error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("could not encode %s extension: %v", e.Extension, e.Err)
}

func (e *ExtensionError) Unwrap() error { return e.Err }

// EncodingError reports a DER serialization failure while assembling the
// to-be-signed certificate body.
type EncodingError struct {
	// Step names the encoding step that failed, e.g. "certificate request".
	Step string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("could not encode %s: %v", e.Step, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// SignatureEncodingError reports a failure while bundling the signature into
// the final signed-certificate envelope. Signing is a single-shot external
// operation that has already happened by the time this error can occur, so it
// is always fatal to the run.
type SignatureEncodingError struct {
	Err error
}

func (e *SignatureEncodingError) Error() string {
	return fmt.Sprintf("could not encode certificate: %v", e.Err)
}

func (e *SignatureEncodingError) Unwrap() error { return e.Err }
