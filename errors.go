package secheaders

import "errors"

var (
	ErrConfigDecode     = errors.New("failed to decode policy configuration")
	ErrAlreadySent      = errors.New("headers have already been sent by this emitter")
	ErrHeadersSent      = errors.New("response headers have already been written")
	ErrNotLoaded        = errors.New("no policy has been loaded")
	ErrEmitterInContext = errors.New("context already carries an emitter")
)
