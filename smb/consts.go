package smb

const (
	// SMB1 protocol ID: 0xFF 'S' 'M' 'B' read as a little-endian uint32.
	PROTOCOL_ID = 0x424d53ff
)

const (
	// SMB protocol dialects in preference order.
	SMB_DIALECT_LANMAN1 = "LANMAN1.0"
	SMB_DIALECT_LANMAN2 = "LM1.2X002"
	SMB_DIALECT_NT1     = "NT LM 0.12"
	SMB_DIALECT_SMB2    = "SMB 2.002"
	SMB_DIALECT_MULTI   = "SMB 2.???"

	// BadDialect signals that none of the offered dialects is acceptable.
	BadDialect = 0xffff

	// DialectSMB2Escalate is returned by the negotiate handler when the
	// client's best dialect is SMB2 or later; the front end is expected to
	// hand the connection over to an SMB2 engine.
	DialectSMB2Escalate = 0xfffe
)

const (
	// SMB command codes.
	SMB_COM_CREATE_DIRECTORY       = 0x00
	SMB_COM_DELETE_DIRECTORY       = 0x01
	SMB_COM_OPEN                   = 0x02
	SMB_COM_CREATE                 = 0x03
	SMB_COM_CLOSE                  = 0x04
	SMB_COM_FLUSH                  = 0x05
	SMB_COM_DELETE                 = 0x06
	SMB_COM_RENAME                 = 0x07
	SMB_COM_QUERY_INFORMATION      = 0x08
	SMB_COM_SET_INFORMATION        = 0x09
	SMB_COM_READ                   = 0x0a
	SMB_COM_WRITE                  = 0x0b
	SMB_COM_LOCK_BYTE_RANGE        = 0x0c
	SMB_COM_UNLOCK_BYTE_RANGE      = 0x0d
	SMB_COM_CREATE_TEMPORARY       = 0x0e
	SMB_COM_CREATE_NEW             = 0x0f
	SMB_COM_CHECK_DIRECTORY        = 0x10
	SMB_COM_PROCESS_EXIT           = 0x11
	SMB_COM_SEEK                   = 0x12
	SMB_COM_LOCK_AND_READ          = 0x13
	SMB_COM_WRITE_AND_UNLOCK       = 0x14
	SMB_COM_SET_INFORMATION2       = 0x22
	SMB_COM_QUERY_INFORMATION2     = 0x23
	SMB_COM_LOCKING_ANDX           = 0x24
	SMB_COM_TRANSACTION            = 0x25
	SMB_COM_TRANSACTION_SECONDARY  = 0x26
	SMB_COM_ECHO                   = 0x2b
	SMB_COM_WRITE_AND_CLOSE        = 0x2c
	SMB_COM_OPEN_ANDX              = 0x2d
	SMB_COM_READ_ANDX              = 0x2e
	SMB_COM_WRITE_ANDX             = 0x2f
	SMB_COM_CLOSE_AND_TREE_DISC    = 0x31
	SMB_COM_TRANSACTION2           = 0x32
	SMB_COM_TRANSACTION2_SECONDARY = 0x33
	SMB_COM_FIND_CLOSE2            = 0x34
	SMB_COM_TREE_CONNECT           = 0x70
	SMB_COM_TREE_DISCONNECT        = 0x71
	SMB_COM_NEGOTIATE              = 0x72
	SMB_COM_SESSION_SETUP_ANDX     = 0x73
	SMB_COM_LOGOFF_ANDX            = 0x74
	SMB_COM_TREE_CONNECT_ANDX      = 0x75
	SMB_COM_QUERY_INFORMATION_DISK = 0x80
	SMB_COM_SEARCH                 = 0x81
	SMB_COM_FIND                   = 0x82
	SMB_COM_NT_TRANSACT            = 0xa0
	SMB_COM_NT_TRANSACT_SECONDARY  = 0xa1
	SMB_COM_NT_CREATE_ANDX         = 0xa2
	SMB_COM_NT_CANCEL              = 0xa4
	SMB_COM_NT_RENAME              = 0xa5
	SMB_COM_INVALID                = 0xfe

	// SMB_NO_MORE_ANDX_COMMAND terminates an AndX chain.
	SMB_NO_MORE_ANDX_COMMAND = 0xff
)

const (
	// Security modes.
	SECMODE_USER            = 0x01
	SECMODE_ENCRYPT_PWD     = 0x02
	SECMODE_SIGN_ENABLED    = 0x04
	SECMODE_SIGN_REQUIRED   = 0x08
)

const (
	// Server capabilities.
	CAP_RAW_MODE          = 0x00000001
	CAP_MPX_MODE          = 0x00000002
	CAP_UNICODE           = 0x00000004
	CAP_LARGE_FILES       = 0x00000008
	CAP_NT_SMBS           = 0x00000010
	CAP_RPC_REMOTE_APIS   = 0x00000020
	CAP_STATUS32          = 0x00000040
	CAP_LEVEL_II_OPLOCKS  = 0x00000080
	CAP_LOCK_AND_READ     = 0x00000100
	CAP_NT_FIND           = 0x00000200
	CAP_DFS               = 0x00001000
	CAP_LARGE_READ_X      = 0x00004000
	CAP_LARGE_WRITE_X     = 0x00008000
	CAP_UNIX              = 0x00800000
	CAP_EXTENDED_SECURITY = 0x80000000
)

const (
	// Header flags.
	FLAGS_LOCK_AND_READ_OK    = 0x01
	FLAGS_BUF_AVAIL           = 0x02
	FLAGS_CASELESS            = 0x08
	FLAGS_CANONICALIZED_PATHS = 0x10
	FLAGS_OPLOCK              = 0x20
	FLAGS_OPBATCH             = 0x40
	FLAGS_RESPONSE            = 0x80
)

const (
	// Header extended flags.
	FLAGS2_LONG_NAMES         = 0x0001
	FLAGS2_EAS                = 0x0002
	FLAGS2_SECURITY_SIGNATURE = 0x0004
	FLAGS2_IS_LONG_NAME       = 0x0040
	FLAGS2_EXT_SEC            = 0x0800
	FLAGS2_DFS                = 0x1000
	FLAGS2_PAGING_IO          = 0x2000
	FLAGS2_NT_STATUS          = 0x4000
	FLAGS2_UNICODE            = 0x8000
)

const (
	// Transaction2 subcommands.
	TRANS2_OPEN                    = 0x0000
	TRANS2_FIND_FIRST              = 0x0001
	TRANS2_FIND_NEXT               = 0x0002
	TRANS2_QUERY_FS_INFORMATION    = 0x0003
	TRANS2_SET_FS_INFORMATION      = 0x0004
	TRANS2_QUERY_PATH_INFORMATION  = 0x0005
	TRANS2_SET_PATH_INFORMATION    = 0x0006
	TRANS2_QUERY_FILE_INFORMATION  = 0x0007
	TRANS2_SET_FILE_INFORMATION    = 0x0008
	TRANS2_CREATE_DIRECTORY        = 0x000d
	TRANS2_SESSION_SETUP           = 0x000e
	TRANS2_GET_DFS_REFERRAL        = 0x0010
	TRANS2_REPORT_DFS_INCONSISTENCY = 0x0011
)

const (
	// Query/set path and file information levels.
	SMB_INFO_STANDARD               = 0x0001
	SMB_INFO_QUERY_EA_SIZE          = 0x0002
	SMB_INFO_QUERY_EAS_FROM_LIST    = 0x0003
	SMB_INFO_QUERY_ALL_EAS          = 0x0004
	SMB_INFO_SET_EAS                = 0x0002
	SMB_QUERY_FILE_BASIC_INFO       = 0x0101
	SMB_QUERY_FILE_STANDARD_INFO    = 0x0102
	SMB_QUERY_FILE_EA_INFO          = 0x0103
	SMB_QUERY_FILE_NAME_INFO        = 0x0104
	SMB_QUERY_FILE_ALL_INFO         = 0x0107
	SMB_QUERY_ALT_NAME_INFO         = 0x0108
	SMB_QUERY_FILE_STREAM_INFO      = 0x0109
	SMB_QUERY_FILE_INTERNAL_INFO    = 0x3ee
	SMB_QUERY_FILE_UNIX_BASIC       = 0x0200
	SMB_QUERY_FILE_UNIX_LINK        = 0x0201
	SMB_QUERY_POSIX_ACL             = 0x0204
	SMB_QUERY_POSIX_PERMISSION      = 0x0209
	SMB_SET_FILE_BASIC_INFO         = 0x0101
	SMB_SET_FILE_DISPOSITION_INFO   = 0x0102
	SMB_SET_FILE_ALLOCATION_INFO    = 0x0103
	SMB_SET_FILE_END_OF_FILE_INFO   = 0x0104
	SMB_SET_FILE_UNIX_BASIC         = 0x0200
	SMB_SET_FILE_UNIX_LINK          = 0x0201
	SMB_SET_FILE_UNIX_HLINK         = 0x0203
	SMB_SET_POSIX_ACL               = 0x0204
	SMB_SET_POSIX_OPEN              = 0x0205
	SMB_SET_POSIX_UNLINK            = 0x020a
	SMB_SET_FILE_BASIC_INFO2        = 0x3ec
	SMB_SET_FILE_RENAME_INFORMATION = 0x3f2
	SMB_SET_FILE_DISPOSITION_INFORMATION = 0x3f5
	SMB_SET_FILE_ALLOCATION_INFO2   = 0x3fb
	SMB_SET_FILE_END_OF_FILE_INFO2  = 0x3fc
)

const (
	// Query FS information levels.
	SMB_INFO_ALLOCATION       = 0x0001
	SMB_INFO_VOLUME           = 0x0002
	SMB_QUERY_FS_VOLUME_INFO  = 0x0102
	SMB_QUERY_FS_SIZE_INFO    = 0x0103
	SMB_QUERY_FS_DEVICE_INFO  = 0x0104
	SMB_QUERY_FS_ATTRIBUTE_INFO = 0x0105
	SMB_QUERY_CIFS_UNIX_INFO  = 0x0200
	SMB_QUERY_POSIX_FS_INFO   = 0x0201
	SMB_QUERY_POSIX_WHOAMI    = 0x0202
	SMB_REQUEST_TRANSPORT_ENCRYPTION = 0x0203
	SMB_QUERY_FS_PROXY        = 0x0204
	SMB_QUERY_LABEL_INFO      = 0x03ea
	SMB_QUERY_FS_QUOTA_INFO   = 0x03ee
	SMB_QUERY_FS_FULL_SIZE_INFO = 0x03ef
	SMB_QUERY_OBJECTID_INFO   = 0x03f0
)

const (
	// Find information levels.
	SMB_FIND_FILE_INFO_STANDARD       = 0x0001
	SMB_FIND_FILE_QUERY_EA_SIZE       = 0x0002
	SMB_FIND_FILE_QUERY_EAS_FROM_LIST = 0x0003
	SMB_FIND_FILE_DIRECTORY_INFO      = 0x0101
	SMB_FIND_FILE_FULL_DIRECTORY_INFO = 0x0102
	SMB_FIND_FILE_NAMES_INFO          = 0x0103
	SMB_FIND_FILE_BOTH_DIRECTORY_INFO = 0x0104
	SMB_FIND_FILE_ID_FULL_DIR_INFO    = 0x0105
	SMB_FIND_FILE_ID_BOTH_DIR_INFO    = 0x0106
	SMB_FIND_FILE_UNIX                = 0x0202
)

const (
	// NT create dispositions.
	FILE_SUPERSEDE    = 0x00000000
	FILE_OPEN         = 0x00000001
	FILE_CREATE       = 0x00000002
	FILE_OPEN_IF      = 0x00000003
	FILE_OVERWRITE    = 0x00000004
	FILE_OVERWRITE_IF = 0x00000005
)

const (
	// NT create actions.
	FILE_SUPERSEDED  = 0x00000000
	FILE_OPENED      = 0x00000001
	FILE_CREATED     = 0x00000002
	FILE_OVERWRITTEN = 0x00000003
)

const (
	// NT create options.
	FILE_DIRECTORY_FILE     = 0x00000001
	FILE_WRITE_THROUGH      = 0x00000002
	FILE_SEQUENTIAL_ONLY    = 0x00000004
	FILE_NO_INTERMEDIATE_BUFFERING = 0x00000008
	FILE_NON_DIRECTORY_FILE = 0x00000040
	FILE_NO_EA_KNOWLEDGE    = 0x00000200
	FILE_RANDOM_ACCESS      = 0x00000800
	FILE_DELETE_ON_CLOSE    = 0x00001000
	FILE_OPEN_BY_FILE_ID    = 0x00002000
)

const (
	// File access mask bits.
	FILE_READ_DATA        = 0x00000001
	FILE_WRITE_DATA       = 0x00000002
	FILE_APPEND_DATA      = 0x00000004
	FILE_READ_EA          = 0x00000008
	FILE_WRITE_EA         = 0x00000010
	FILE_EXECUTE          = 0x00000020
	FILE_DELETE_CHILD     = 0x00000040
	FILE_READ_ATTRIBUTES  = 0x00000080
	FILE_WRITE_ATTRIBUTES = 0x00000100
	DELETE                = 0x00010000
	READ_CONTROL          = 0x00020000
	WRITE_DAC             = 0x00040000
	WRITE_OWNER           = 0x00080000
	SYNCHRONIZE           = 0x00100000
	SYSTEM_SECURITY       = 0x01000000
	MAXIMUM_ALLOWED       = 0x02000000
	GENERIC_ALL           = 0x10000000
	GENERIC_EXECUTE       = 0x20000000
	GENERIC_WRITE         = 0x40000000
	GENERIC_READ          = 0x80000000

	FILE_READ_RIGHTS  = FILE_READ_DATA | FILE_READ_EA | FILE_READ_ATTRIBUTES | READ_CONTROL | SYNCHRONIZE
	FILE_WRITE_RIGHTS = FILE_WRITE_DATA | FILE_APPEND_DATA | FILE_WRITE_EA | FILE_WRITE_ATTRIBUTES | READ_CONTROL | SYNCHRONIZE
	FILE_EXEC_RIGHTS  = FILE_EXECUTE | FILE_READ_ATTRIBUTES | READ_CONTROL | SYNCHRONIZE
)

const (
	// File attributes.
	ATTR_READONLY  = 0x0001
	ATTR_HIDDEN    = 0x0002
	ATTR_SYSTEM    = 0x0004
	ATTR_VOLUME    = 0x0008
	ATTR_DIRECTORY = 0x0010
	ATTR_ARCHIVE   = 0x0020
	ATTR_DEVICE    = 0x0040
	ATTR_NORMAL    = 0x0080
	ATTR_TEMPORARY = 0x0100
	ATTR_SPARSE    = 0x0200
	ATTR_REPARSE   = 0x0400
	ATTR_COMPRESSED = 0x0800
	ATTR_OFFLINE   = 0x1000
	ATTR_NOT_CONTENT_INDEXED = 0x2000
	ATTR_ENCRYPTED = 0x4000
	ATTR_POSIX_SEMANTICS = 0x01000000
)

const (
	// Share access.
	FILE_NO_SHARE     = 0x00000000
	FILE_SHARE_READ   = 0x00000001
	FILE_SHARE_WRITE  = 0x00000002
	FILE_SHARE_DELETE = 0x00000004
	FILE_SHARE_ALL    = FILE_SHARE_READ | FILE_SHARE_WRITE | FILE_SHARE_DELETE
)

const (
	// Oplock levels on the wire.
	OPLOCK_NONE      = 0x00
	OPLOCK_EXCLUSIVE = 0x01
	OPLOCK_BATCH     = 0x02
	OPLOCK_LEVEL_II  = 0x03
)

const (
	// LockingAndX type flags.
	LOCKING_ANDX_SHARED_LOCK     = 0x01
	LOCKING_ANDX_OPLOCK_RELEASE  = 0x02
	LOCKING_ANDX_CHANGE_LOCKTYPE = 0x04
	LOCKING_ANDX_CANCEL_LOCK     = 0x08
	LOCKING_ANDX_LARGE_FILES     = 0x10
)

const (
	// Optional support bits in the tree connect response.
	SMB_SUPPORT_SEARCH_BITS = 0x0001
	SMB_SHARE_IS_IN_DFS     = 0x0002
	SMB_CSC_MASK            = 0x000c
	SMB_CSC_CACHE_AUTO_REINT = 0x0004
	SMB_CSC_CACHE_VDO       = 0x0008
	SMB_CSC_NO_CACHING      = 0x000c
	SMB_UNIQUE_FILE_NAME    = 0x0010
	SMB_EXTENDED_SIGNATURES = 0x0020
)

const (
	// Service type strings returned by tree connect.
	ServiceDisk = "A:"
	ServicePipe = "IPC"
	ServiceAny  = "?????"

	// NativeFileSystem is the name reported to clients for disk shares.
	NativeFileSystem = "NTFS"
)

const (
	// Buffer classes. Small covers the common single-command responses;
	// large is needed by transactions and directory enumeration.
	SmallBufferSize = 4356
	LargeBufferSize = 16644

	// MaxMpxCount bounds concurrent in-flight requests per connection.
	MaxMpxCount = 10

	// DefaultIOSize caps a single ReadAndX/WriteAndX transfer.
	DefaultIOSize = 65536
)
