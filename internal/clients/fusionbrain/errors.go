package fusionbrain

import "errors"

var (
	// ErrBusy is returned when an operation starts while another one is in flight.
	ErrBusy = errors.New("fusionbrain: request already in flight")
	// ErrNoCredentials is returned before any network call when no key pair is set.
	ErrNoCredentials = errors.New("fusionbrain: credentials not set")
	// ErrWrongConfig rejects a generation with missing model, style, prompt or credentials.
	ErrWrongConfig = errors.New("fusionbrain: wrong config")
	// ErrRequest reports that every submission attempt failed.
	ErrRequest = errors.New("fusionbrain: generation request failed")
	// ErrProtocol reports a response whose shape does not match the service contract.
	ErrProtocol = errors.New("fusionbrain: unexpected response")
	// ErrNoJob is returned by GetImage when no job handle is outstanding.
	ErrNoJob = errors.New("fusionbrain: no job in flight")
	// ErrGenerationFailed mirrors a FAIL status reported by the service.
	ErrGenerationFailed = errors.New("fusionbrain: generation failed")
	// ErrNoImage is returned when a DONE job carries no image.
	ErrNoImage = errors.New("fusionbrain: no image in response")
	// ErrDecode wraps any failure of the image pipeline.
	ErrDecode = errors.New("fusionbrain: image decode failed")
)
