package smb

import (
	"encoding/binary"

	"github.com/vstarodubtsev/cifsd/utils"
)

// Body carves the word and byte areas of the command at offset off out of a
// raw PDU. off points at the command's WordCount byte; for the first command
// in a PDU that is HeaderSize, for chained commands it is the previous
// block's AndXOffset. Every access is bounds-checked against the PDU length.
func Body(msg []byte, off int) (words, data []byte, err error) {
	if off < HeaderSize || off+3 > len(msg) {
		return nil, nil, ErrBadOffset
	}

	wc := int(msg[off])
	wordsEnd := off + 1 + wc*2
	if wordsEnd+2 > len(msg) {
		return nil, nil, ErrWrongStructureLength
	}

	bcc := int(binary.LittleEndian.Uint16(msg[wordsEnd : wordsEnd+2]))
	dataEnd := wordsEnd + 2 + bcc
	if dataEnd > len(msg) {
		return nil, nil, ErrWrongDataLength
	}

	return msg[off+1 : wordsEnd], msg[wordsEnd+2 : dataEnd], nil
}

// AndX is the chaining block carried by AndX-capable commands in their first
// two parameter words.
type AndX struct {
	Command uint8
	Offset  uint16
}

// DecodeAndX reads the AndX block from a command's parameter words.
func DecodeAndX(words []byte) (AndX, error) {
	if len(words) < 4 {
		return AndX{}, ErrWrongParameters
	}
	return AndX{
		Command: words[0],
		Offset:  binary.LittleEndian.Uint16(words[2:4]),
	}, nil
}

// HasNext reports whether another command follows in the chain.
func (a AndX) HasNext() bool {
	return a.Command != SMB_NO_MORE_ANDX_COMMAND
}

// DecodePath extracts a path string from a request byte area. SMB1 paths in
// the byte area are either ASCII or UTF-16LE depending on the Unicode flag;
// Unicode strings are padded to an even offset relative to the header.
func DecodePath(data []byte, unicode bool) string {
	if unicode {
		// Skip the alignment pad byte if present.
		if len(data) > 0 && data[0] == 0 {
			data = data[1:]
		}
		end := len(data)
		for i := 0; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				end = i
				break
			}
		}
		return utils.DecodeToString(data[:end])
	}

	end := len(data)
	for i, b := range data {
		if b == 0 {
			end = i
			break
		}
	}
	return string(data[:end])
}
