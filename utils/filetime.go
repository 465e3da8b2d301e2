package utils

import (
	"time"
)

// Unix time is represented in nanoseconds since January 1, 1970.
// Filetime is represented in 100-nanosecond intervals since January 1, 1601.
const filetimeOffset = 11644473600

// UnixToFiletime converts the Unix time to Filetime.
func UnixToFiletime(t time.Time) uint64 {
	return uint64(t.Unix()+filetimeOffset)*1e7 + uint64(t.Nanosecond()/100)
}

// FiletimeToUnix converts Filetime to the Unix time.
func FiletimeToUnix(ft uint64) time.Time {
	return time.Unix(int64(ft)/1e7-filetimeOffset, int64(ft)%1e7*100)
}

// UnixToDosTime converts the Unix time to the legacy 16-bit SMB date and time pair.
func UnixToDosTime(t time.Time) (dosTime, dosDate uint16) {
	dosTime = uint16(t.Second()/2) | uint16(t.Minute())<<5 | uint16(t.Hour())<<11
	dosDate = uint16(t.Day()) | uint16(t.Month())<<5 | uint16(t.Year()-1980)<<9
	return
}

// DosTimeToUnix converts the legacy 16-bit SMB date and time pair to the Unix time.
func DosTimeToUnix(dosTime, dosDate uint16) time.Time {
	sec := int(dosTime&0x1f) * 2
	min := int(dosTime >> 5 & 0x3f)
	hour := int(dosTime >> 11)
	day := int(dosDate & 0x1f)
	month := time.Month(dosDate >> 5 & 0x0f)
	year := int(dosDate>>9) + 1980
	return time.Date(year, month, day, hour, min, sec, 0, time.Local)
}
