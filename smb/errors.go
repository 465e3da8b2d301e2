package smb

import "errors"

var (
	// Standardized error messages.
	ErrWrongStructureLength = errors.New("wrong structure length")
	ErrWrongProtocol        = errors.New("unsupported protocol")
	ErrWrongParameters      = errors.New("wrong parameter list")
	ErrWrongDataLength      = errors.New("data field has a wrong length")
	ErrWrongArgument        = errors.New("wrong data field")
	ErrBadOffset            = errors.New("offset points past the buffer")
	ErrBufferFull           = errors.New("response buffer full")
)
