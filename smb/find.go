package smb

import (
	"encoding/binary"
	"time"

	"github.com/vstarodubtsev/cifsd/utils"
)

// FindEntry is one directory entry to be marshalled at a FindFirst2 or
// FindNext2 information level.
type FindEntry struct {
	Name           string
	ShortName      string
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	EndOfFile      uint64
	AllocationSize uint64
	FileAttributes uint32
	FileID         uint64
	EaSize         uint32
}

func findEntryFixedSize(level uint16) (int, error) {
	switch level {
	case SMB_FIND_FILE_DIRECTORY_INFO:
		return 64, nil
	case SMB_FIND_FILE_FULL_DIRECTORY_INFO:
		return 68, nil
	case SMB_FIND_FILE_NAMES_INFO:
		return 12, nil
	case SMB_FIND_FILE_BOTH_DIRECTORY_INFO:
		return 94, nil
	case SMB_FIND_FILE_ID_FULL_DIR_INFO:
		return 80, nil
	case SMB_FIND_FILE_ID_BOTH_DIR_INFO:
		return 104, nil
	default:
		return 0, ErrWrongArgument
	}
}

// Encode marshals the entry at the given information level. The
// NextEntryOffset field points past the entry rounded to four bytes; the
// caller zeroes it on the final entry of a block.
func (e *FindEntry) Encode(level uint16, unicode bool) ([]byte, error) {
	fixed, err := findEntryFixedSize(level)
	if err != nil {
		return nil, err
	}

	var name []byte
	if unicode {
		name = utils.EncodeStringToBytes(e.Name)
	} else {
		name = []byte(e.Name)
	}

	size := utils.Roundup(fixed+len(name), 4)
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:4], uint32(size))

	if level == SMB_FIND_FILE_NAMES_INFO {
		binary.LittleEndian.PutUint32(b[8:12], uint32(len(name)))
		copy(b[12:], name)
		return b, nil
	}

	binary.LittleEndian.PutUint64(b[8:16], utils.UnixToFiletime(e.CreationTime))
	binary.LittleEndian.PutUint64(b[16:24], utils.UnixToFiletime(e.LastAccessTime))
	binary.LittleEndian.PutUint64(b[24:32], utils.UnixToFiletime(e.LastWriteTime))
	binary.LittleEndian.PutUint64(b[32:40], utils.UnixToFiletime(e.ChangeTime))
	binary.LittleEndian.PutUint64(b[40:48], e.EndOfFile)
	binary.LittleEndian.PutUint64(b[48:56], e.AllocationSize)
	binary.LittleEndian.PutUint32(b[56:60], e.FileAttributes)
	binary.LittleEndian.PutUint32(b[60:64], uint32(len(name)))

	switch level {
	case SMB_FIND_FILE_DIRECTORY_INFO:
		copy(b[64:], name)
	case SMB_FIND_FILE_FULL_DIRECTORY_INFO:
		binary.LittleEndian.PutUint32(b[64:68], e.EaSize)
		copy(b[68:], name)
	case SMB_FIND_FILE_BOTH_DIRECTORY_INFO:
		binary.LittleEndian.PutUint32(b[64:68], e.EaSize)
		putShortName(b[68:94], e.ShortName)
		copy(b[94:], name)
	case SMB_FIND_FILE_ID_FULL_DIR_INFO:
		binary.LittleEndian.PutUint32(b[64:68], e.EaSize)
		binary.LittleEndian.PutUint64(b[72:80], e.FileID)
		copy(b[80:], name)
	case SMB_FIND_FILE_ID_BOTH_DIR_INFO:
		binary.LittleEndian.PutUint32(b[64:68], e.EaSize)
		putShortName(b[68:94], e.ShortName)
		binary.LittleEndian.PutUint64(b[96:104], e.FileID)
		copy(b[104:], name)
	}
	return b, nil
}

// putShortName fills the 8.3 name area: one length byte, one reserved byte
// and up to twelve UTF-16 characters.
func putShortName(b []byte, shortName string) {
	if shortName == "" {
		return
	}
	enc := utils.EncodeStringToBytes(shortName)
	if len(enc) > 24 {
		enc = enc[:24]
	}
	b[0] = uint8(len(enc))
	copy(b[2:], enc)
}

// FindBuffer accumulates marshalled directory entries for one FindFirst2 or
// FindNext2 response data block, capping the block at the client's
// MaxDataCount.
type FindBuffer struct {
	level      uint16
	unicode    bool
	maxSize    int
	data       []byte
	count      int
	lastOffset int
}

func NewFindBuffer(level uint16, unicode bool, maxSize int) *FindBuffer {
	return &FindBuffer{level: level, unicode: unicode, maxSize: maxSize}
}

// Add marshals one entry into the buffer. It returns ErrBufferFull without
// consuming the entry when the block is out of space; the entry then opens
// the next FindNext2 batch.
func (fb *FindBuffer) Add(e *FindEntry) error {
	b, err := e.Encode(fb.level, fb.unicode)
	if err != nil {
		return err
	}
	if len(fb.data)+len(b) > fb.maxSize {
		return ErrBufferFull
	}
	fb.lastOffset = len(fb.data)
	fb.data = append(fb.data, b...)
	fb.count++
	return nil
}

// Bytes terminates the entry chain and returns the data block.
func (fb *FindBuffer) Bytes() []byte {
	if fb.count > 0 {
		binary.LittleEndian.PutUint32(fb.data[fb.lastOffset:], 0)
	}
	return fb.data
}

// Count returns the number of entries added.
func (fb *FindBuffer) Count() int {
	return fb.count
}

// LastNameOffset returns the offset of the final entry in the block, as
// reported in the response parameter block.
func (fb *FindBuffer) LastNameOffset() uint16 {
	return uint16(fb.lastOffset)
}
