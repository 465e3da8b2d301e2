package smb

import (
	"encoding/binary"
	"time"

	"github.com/vstarodubtsev/cifsd/utils"
)

// Filesystem attribute flags reported by QUERY_FS_ATTRIBUTE_INFO.
const (
	FILE_CASE_SENSITIVE_SEARCH = 0x00000001
	FILE_CASE_PRESERVED_NAMES  = 0x00000002
	FILE_UNICODE_ON_DISK       = 0x00000004
	FILE_PERSISTENT_ACLS       = 0x00000008
	FILE_SUPPORTS_SPARSE_FILES = 0x00000040
	FILE_NAMED_STREAMS         = 0x00040000
)

// Device type for QUERY_FS_DEVICE_INFO.
const FILE_DEVICE_DISK = 0x00000007

// FileInfo carries the attributes of one file for the query info levels.
// Handlers fill it from a stat plus the DOS attribute xattr.
type FileInfo struct {
	Name           string
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	EndOfFile      uint64
	AllocationSize uint64
	FileAttributes uint32
	NumberOfLinks  uint32
	FileID         uint64
	DeletePending  bool
	Directory      bool
	EaSize         uint32
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// EncodeInfoStandard marshals the 22-byte SMB_INFO_STANDARD block with DOS
// date/time pairs.
func (fi *FileInfo) EncodeInfoStandard() []byte {
	b := make([]byte, 22)
	putDosDateTime(b[0:4], fi.CreationTime)
	putDosDateTime(b[4:8], fi.LastAccessTime)
	putDosDateTime(b[8:12], fi.LastWriteTime)
	binary.LittleEndian.PutUint32(b[12:16], uint32(fi.EndOfFile))
	binary.LittleEndian.PutUint32(b[16:20], uint32(fi.AllocationSize))
	binary.LittleEndian.PutUint16(b[20:22], uint16(fi.FileAttributes))
	return b
}

// EncodeBasicInfo marshals the 40-byte FILE_BASIC_INFO block.
func (fi *FileInfo) EncodeBasicInfo() []byte {
	b := make([]byte, 40)
	binary.LittleEndian.PutUint64(b[0:8], utils.UnixToFiletime(fi.CreationTime))
	binary.LittleEndian.PutUint64(b[8:16], utils.UnixToFiletime(fi.LastAccessTime))
	binary.LittleEndian.PutUint64(b[16:24], utils.UnixToFiletime(fi.LastWriteTime))
	binary.LittleEndian.PutUint64(b[24:32], utils.UnixToFiletime(fi.ChangeTime))
	binary.LittleEndian.PutUint32(b[32:36], fi.FileAttributes)
	return b
}

// EncodeStandardInfo marshals the 24-byte FILE_STANDARD_INFO block.
func (fi *FileInfo) EncodeStandardInfo() []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], fi.AllocationSize)
	binary.LittleEndian.PutUint64(b[8:16], fi.EndOfFile)
	binary.LittleEndian.PutUint32(b[16:20], fi.NumberOfLinks)
	b[20] = boolByte(fi.DeletePending)
	b[21] = boolByte(fi.Directory)
	return b
}

// EncodeEaInfo marshals the 4-byte FILE_EA_INFO block.
func (fi *FileInfo) EncodeEaInfo() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, fi.EaSize)
	return b
}

// EncodeNameInfo marshals the FILE_NAME_INFO block.
func (fi *FileInfo) EncodeNameInfo(unicode bool) []byte {
	return encodeNameBlock(fi.Name, unicode)
}

func encodeNameBlock(name string, unicode bool) []byte {
	var enc []byte
	if unicode {
		enc = utils.EncodeStringToBytes(name)
	} else {
		enc = []byte(name)
	}
	b := make([]byte, 4+len(enc))
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(enc)))
	copy(b[4:], enc)
	return b
}

// EncodeAllInfo marshals the SMB_QUERY_FILE_ALL_INFO block.
func (fi *FileInfo) EncodeAllInfo(unicode bool) []byte {
	var enc []byte
	if unicode {
		enc = utils.EncodeStringToBytes(fi.Name)
	} else {
		enc = []byte(fi.Name)
	}
	b := make([]byte, 72+len(enc))
	copy(b[0:40], fi.EncodeBasicInfo())
	binary.LittleEndian.PutUint64(b[40:48], fi.AllocationSize)
	binary.LittleEndian.PutUint64(b[48:56], fi.EndOfFile)
	binary.LittleEndian.PutUint32(b[56:60], fi.NumberOfLinks)
	b[60] = boolByte(fi.DeletePending)
	b[61] = boolByte(fi.Directory)
	binary.LittleEndian.PutUint32(b[64:68], fi.EaSize)
	binary.LittleEndian.PutUint32(b[68:72], uint32(len(enc)))
	copy(b[72:], enc)
	return b
}

// EncodeInternalInfo marshals the 8-byte FILE_INTERNAL_INFO block.
func (fi *FileInfo) EncodeInternalInfo() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, fi.FileID)
	return b
}

// StreamInfo is one named data stream for FILE_STREAM_INFO. The unnamed
// stream is reported as "::$DATA".
type StreamInfo struct {
	Name           string
	Size           uint64
	AllocationSize uint64
}

// EncodeStreamInfo marshals a FILE_STREAM_INFO chain. Entries are
// eight-byte aligned with NextEntryOffset links, zero on the last.
func EncodeStreamInfo(streams []StreamInfo, unicode bool) []byte {
	var out []byte
	last := 0
	for _, s := range streams {
		var enc []byte
		if unicode {
			enc = utils.EncodeStringToBytes(s.Name)
		} else {
			enc = []byte(s.Name)
		}
		size := utils.Roundup(24+len(enc), 8)
		b := make([]byte, size)
		binary.LittleEndian.PutUint32(b[0:4], uint32(size))
		binary.LittleEndian.PutUint32(b[4:8], uint32(len(enc)))
		binary.LittleEndian.PutUint64(b[8:16], s.Size)
		binary.LittleEndian.PutUint64(b[16:24], s.AllocationSize)
		copy(b[24:], enc)
		last = len(out)
		out = append(out, b...)
	}
	if len(out) > 0 {
		binary.LittleEndian.PutUint32(out[last:], 0)
	}
	return out
}

// SetBasicInfo is the decoded FILE_BASIC_INFO set block. Zero times mean
// the field is left unchanged.
type SetBasicInfo struct {
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	FileAttributes uint32
}

func (s *SetBasicInfo) Decode(data []byte) error {
	if len(data) < 36 {
		return ErrWrongDataLength
	}
	s.CreationTime = decodeSetTime(data[0:8])
	s.LastAccessTime = decodeSetTime(data[8:16])
	s.LastWriteTime = decodeSetTime(data[16:24])
	s.ChangeTime = decodeSetTime(data[24:32])
	s.FileAttributes = binary.LittleEndian.Uint32(data[32:36])
	return nil
}

func decodeSetTime(b []byte) time.Time {
	ft := binary.LittleEndian.Uint64(b)
	if ft == 0 || ft == 0xffffffffffffffff {
		return time.Time{}
	}
	return utils.FiletimeToUnix(ft)
}

// DecodeSetDisposition decodes the FILE_DISPOSITION_INFO set block.
func DecodeSetDisposition(data []byte) (bool, error) {
	if len(data) < 1 {
		return false, ErrWrongDataLength
	}
	return data[0] != 0, nil
}

// DecodeSetSize decodes the end-of-file and allocation set blocks, both a
// single 64-bit size.
func DecodeSetSize(data []byte) (uint64, error) {
	if len(data) < 8 {
		return 0, ErrWrongDataLength
	}
	return binary.LittleEndian.Uint64(data), nil
}

// SetRenameInfo is the decoded FILE_RENAME_INFORMATION set block.
type SetRenameInfo struct {
	ReplaceIfExists bool
	NewName         string
}

func (s *SetRenameInfo) Decode(data []byte, unicode bool) error {
	if len(data) < 20 {
		return ErrWrongDataLength
	}
	s.ReplaceIfExists = data[0] != 0
	nameLen := int(binary.LittleEndian.Uint32(data[16:20]))
	if 20+nameLen > len(data) {
		return ErrWrongDataLength
	}
	if unicode {
		s.NewName = utils.DecodeToString(data[20 : 20+nameLen])
	} else {
		s.NewName = string(data[20 : 20+nameLen])
	}
	return nil
}

// FsInfo carries the filesystem attributes for the QUERY_FS levels,
// filled from statfs on the share root.
type FsInfo struct {
	TotalUnits     uint64
	FreeUnits      uint64
	SectorsPerUnit uint32
	BytesPerSector uint32
	SerialNumber   uint32
	Label          string
	FsName         string
	MaxNameLen     uint32
	CreationTime   time.Time
}

// EncodeInfoAllocation marshals the legacy 18-byte SMB_INFO_ALLOCATION
// block.
func (fs *FsInfo) EncodeInfoAllocation() []byte {
	b := make([]byte, 18)
	binary.LittleEndian.PutUint32(b[4:8], fs.SectorsPerUnit)
	binary.LittleEndian.PutUint32(b[8:12], uint32(fs.TotalUnits))
	binary.LittleEndian.PutUint32(b[12:16], uint32(fs.FreeUnits))
	binary.LittleEndian.PutUint16(b[16:18], uint16(fs.BytesPerSector))
	return b
}

// EncodeFsVolumeInfo marshals the FILE_FS_VOLUME_INFO block.
func (fs *FsInfo) EncodeFsVolumeInfo(unicode bool) []byte {
	var enc []byte
	if unicode {
		enc = utils.EncodeStringToBytes(fs.Label)
	} else {
		enc = []byte(fs.Label)
	}
	b := make([]byte, 18+len(enc))
	binary.LittleEndian.PutUint64(b[0:8], utils.UnixToFiletime(fs.CreationTime))
	binary.LittleEndian.PutUint32(b[8:12], fs.SerialNumber)
	binary.LittleEndian.PutUint32(b[12:16], uint32(len(enc)))
	copy(b[18:], enc)
	return b
}

// EncodeFsSizeInfo marshals the 24-byte FILE_FS_SIZE_INFO block.
func (fs *FsInfo) EncodeFsSizeInfo() []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], fs.TotalUnits)
	binary.LittleEndian.PutUint64(b[8:16], fs.FreeUnits)
	binary.LittleEndian.PutUint32(b[16:20], fs.SectorsPerUnit)
	binary.LittleEndian.PutUint32(b[20:24], fs.BytesPerSector)
	return b
}

// EncodeFsFullSizeInfo marshals the 32-byte FILE_FS_FULL_SIZE_INFO block.
func (fs *FsInfo) EncodeFsFullSizeInfo() []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint64(b[0:8], fs.TotalUnits)
	binary.LittleEndian.PutUint64(b[8:16], fs.FreeUnits)
	binary.LittleEndian.PutUint64(b[16:24], fs.FreeUnits)
	binary.LittleEndian.PutUint32(b[24:28], fs.SectorsPerUnit)
	binary.LittleEndian.PutUint32(b[28:32], fs.BytesPerSector)
	return b
}

// EncodeFsDeviceInfo marshals the 8-byte FILE_FS_DEVICE_INFO block.
func (fs *FsInfo) EncodeFsDeviceInfo() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], FILE_DEVICE_DISK)
	return b
}

// EncodeFsAttributeInfo marshals the FILE_FS_ATTRIBUTE_INFO block.
func (fs *FsInfo) EncodeFsAttributeInfo(unicode bool) []byte {
	var enc []byte
	if unicode {
		enc = utils.EncodeStringToBytes(fs.FsName)
	} else {
		enc = []byte(fs.FsName)
	}
	b := make([]byte, 12+len(enc))
	attrs := uint32(FILE_CASE_PRESERVED_NAMES | FILE_UNICODE_ON_DISK |
		FILE_PERSISTENT_ACLS | FILE_SUPPORTS_SPARSE_FILES | FILE_NAMED_STREAMS)
	binary.LittleEndian.PutUint32(b[0:4], attrs)
	binary.LittleEndian.PutUint32(b[4:8], fs.MaxNameLen)
	binary.LittleEndian.PutUint32(b[8:12], uint32(len(enc)))
	copy(b[12:], enc)
	return b
}
