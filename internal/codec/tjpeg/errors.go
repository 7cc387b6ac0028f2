package tjpeg

import "errors"

var (
	// ErrNoJPEG is returned when the stream does not start with an SOI marker.
	ErrNoJPEG = errors.New("tjpeg: not a JPEG stream")
	// ErrSyntax reports a corrupt marker segment or entropy-coded data.
	ErrSyntax = errors.New("tjpeg: invalid JPEG format")
	// ErrUnsupported reports a valid but unsupported encoding (progressive, arithmetic,
	// lossless, 12-bit precision, unusual subsampling).
	ErrUnsupported = errors.New("tjpeg: unsupported JPEG feature")
	// ErrWorkspace reports tables or an MCU layout that do not fit the fixed workspace.
	ErrWorkspace = errors.New("tjpeg: insufficient workspace")
	// ErrInterrupted is returned when the output callback asks to stop.
	ErrInterrupted = errors.New("tjpeg: decode interrupted by output")

	errState = errors.New("tjpeg: decoder already used")
)
