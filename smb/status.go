package smb

import (
	"errors"
	"io/fs"
	"syscall"
)

const (
	// NT status codes.
	STATUS_OK                      = 0x00000000
	STATUS_BUFFER_OVERFLOW         = 0x80000005
	STATUS_NO_MORE_FILES           = 0x80000006
	STATUS_UNSUCCESSFUL            = 0xc0000001
	STATUS_NOT_IMPLEMENTED         = 0xc0000002
	STATUS_INVALID_HANDLE          = 0xc0000008
	STATUS_INVALID_PARAMETER       = 0xc000000d
	STATUS_NO_SUCH_DEVICE          = 0xc000000e
	STATUS_NO_SUCH_FILE            = 0xc000000f
	STATUS_INVALID_DEVICE_REQUEST  = 0xc0000010
	STATUS_END_OF_FILE             = 0xc0000011
	STATUS_MORE_PROCESSING_REQUIRED = 0xc0000016
	STATUS_NO_MEMORY               = 0xc0000017
	STATUS_ACCESS_DENIED           = 0xc0000022
	STATUS_BUFFER_TOO_SMALL        = 0xc0000023
	STATUS_OBJECT_NAME_INVALID     = 0xc0000033
	STATUS_OBJECT_NAME_NOT_FOUND   = 0xc0000034
	STATUS_OBJECT_NAME_COLLISION   = 0xc0000035
	STATUS_OBJECT_PATH_NOT_FOUND   = 0xc000003a
	STATUS_OBJECT_PATH_SYNTAX_BAD  = 0xc000003b
	STATUS_DATA_ERROR              = 0xc000003e
	STATUS_SHARING_VIOLATION       = 0xc0000043
	STATUS_DELETE_PENDING          = 0xc0000056
	STATUS_INVALID_OWNER           = 0xc000005a
	STATUS_NO_SUCH_USER            = 0xc0000064
	STATUS_INVALID_LOGON_TYPE      = 0xc000010b
	STATUS_LOGON_FAILURE           = 0xc000006d
	STATUS_DISK_FULL               = 0xc000007f
	STATUS_TOO_MANY_OPENED_FILES   = 0xc000011f
	STATUS_FILE_LOCK_CONFLICT      = 0xc0000054
	STATUS_LOCK_NOT_GRANTED        = 0xc0000055
	STATUS_RANGE_NOT_LOCKED        = 0xc000007e
	STATUS_INSUFFICIENT_RESOURCES  = 0xc000009a
	STATUS_IO_TIMEOUT              = 0xc00000b5
	STATUS_FILE_IS_A_DIRECTORY     = 0xc00000ba
	STATUS_NOT_SUPPORTED           = 0xc00000bb
	STATUS_NOT_SAME_DEVICE         = 0xc00000d4
	STATUS_BAD_NETWORK_PATH        = 0xc00000be
	STATUS_NETWORK_ACCESS_DENIED   = 0xc00000ca
	STATUS_BAD_NETWORK_NAME        = 0xc00000cc
	STATUS_DIRECTORY_NOT_EMPTY     = 0xc0000101
	STATUS_NOT_A_DIRECTORY         = 0xc0000103
	STATUS_OPLOCK_NOT_GRANTED      = 0xc00000e2
	STATUS_CANNOT_DELETE           = 0xc0000121
	STATUS_FILE_CLOSED             = 0xc0000128
	STATUS_FILE_DELETED            = 0xc0000123
	STATUS_INVALID_LEVEL           = 0xc0000148
	STATUS_FILE_RENAMED            = 0xc00000d5
	STATUS_NO_SUCH_LOGON_SESSION   = 0xc000005f
	STATUS_USER_SESSION_DELETED    = 0xc0000203
	STATUS_UNEXPECTED_IO_ERROR     = 0xc00000e9
)

const (
	// Legacy DOS error classes.
	ERRDOS = 0x01
	ERRSRV = 0x02
	ERRHRD = 0x03

	// Legacy DOS error codes (class ERRDOS).
	ERRbadfunc    = 1
	ERRbadfile    = 2
	ERRbadpath    = 3
	ERRnofids     = 4
	ERRnoaccess   = 5
	ERRbadfid     = 6
	ERRnomem      = 8
	ERRbadaccess  = 12
	ERRnofiles    = 18
	ERRfilexists  = 80

	// Legacy DOS error codes (class ERRSRV).
	ERRerror      = 1
	ERRbadpw      = 2
	ERRbadtype    = 3
	ERRinvnid     = 5
	ERRinvnetname = 6
	ERRbaduid     = 91
)

// Status is a tagged NT status result. The zero value means success.
type Status uint32

// Err returns the status as an error, or nil for STATUS_OK.
func (s Status) Err() error {
	if s == STATUS_OK {
		return nil
	}
	return &StatusError{Code: uint32(s)}
}

// StatusError carries an NT status through an error return.
type StatusError struct {
	Code uint32
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return "nt status " + hex32(e.Code)
}

func hex32(v uint32) string {
	const digits = "0123456789abcdef"
	b := []byte("0x00000000")
	for i := 9; i >= 2; i-- {
		b[i] = digits[v&0xf]
		v >>= 4
	}
	return string(b)
}

// NTStatus extracts the NT status from an error produced by a handler or the
// VFS layer. Unknown errors map to STATUS_UNEXPECTED_IO_ERROR; the mapping is
// deliberately explicit for everything the handlers can produce.
func NTStatus(err error) uint32 {
	if err == nil {
		return STATUS_OK
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}

	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return STATUS_OBJECT_NAME_NOT_FOUND
	case errors.Is(err, fs.ErrExist), errors.Is(err, syscall.EEXIST):
		return STATUS_OBJECT_NAME_COLLISION
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return STATUS_ACCESS_DENIED
	case errors.Is(err, syscall.ENOTDIR):
		return STATUS_NOT_A_DIRECTORY
	case errors.Is(err, syscall.EISDIR):
		return STATUS_FILE_IS_A_DIRECTORY
	case errors.Is(err, syscall.ENOTEMPTY):
		return STATUS_DIRECTORY_NOT_EMPTY
	case errors.Is(err, syscall.EXDEV):
		return STATUS_NOT_SAME_DEVICE
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return STATUS_DISK_FULL
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		return STATUS_TOO_MANY_OPENED_FILES
	case errors.Is(err, syscall.EAGAIN):
		return STATUS_FILE_LOCK_CONFLICT
	case errors.Is(err, syscall.EBADF):
		return STATUS_INVALID_HANDLE
	case errors.Is(err, syscall.ENOMEM):
		return STATUS_NO_MEMORY
	case errors.Is(err, syscall.EOPNOTSUPP), errors.Is(err, syscall.ENOSYS):
		return STATUS_NOT_SUPPORTED
	case errors.Is(err, syscall.ENAMETOOLONG):
		return STATUS_OBJECT_NAME_INVALID
	case errors.Is(err, syscall.EINVAL):
		return STATUS_INVALID_PARAMETER
	case errors.Is(err, syscall.ERANGE):
		return STATUS_BUFFER_TOO_SMALL
	}

	return STATUS_UNEXPECTED_IO_ERROR
}
