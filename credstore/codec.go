package credstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const recordEncodingV1 = 1

var errRecordEncoding = errors.New("invalid verification record encoding")

// encodeRecord layout (big-endian):
//
//	version(1) status(1) attempts(2) resends(2)
//	issuedAt(8) expiresAt(8) lastSentAt(8) lockedUntil(8) recordVersion(8)
//	id, subject, purpose, channel as len(2)+bytes
//	secretHash(32)
//
// Timestamps are unix nanoseconds; 0 encodes the zero time.
func encodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 + len(rec.VerificationID) + len(rec.Subject) + len(rec.Purpose) + len(rec.Channel) + 32)

	buf.WriteByte(recordEncodingV1)
	buf.WriteByte(byte(rec.Status))

	if rec.AttemptCount < 0 || rec.AttemptCount > 0xffff || rec.ResendCount < 0 || rec.ResendCount > 0xffff {
		return nil, errors.New("verification record counter out of range")
	}
	header := []any{
		uint16(rec.AttemptCount),
		uint16(rec.ResendCount),
		unixNano(rec.IssuedAt),
		unixNano(rec.ExpiresAt),
		unixNano(rec.LastSentAt),
		unixNano(rec.LockedUntil),
		rec.Version,
	}
	for _, v := range header {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	for _, s := range []string{rec.VerificationID, rec.Subject, rec.Purpose, rec.Channel} {
		if len(s) > 0xffff {
			return nil, errors.New("verification record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(s))); err != nil {
			return nil, err
		}
		buf.WriteString(s)
	}
	buf.Write(rec.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordEncodingV1 {
		return nil, errRecordEncoding
	}
	status, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	var (
		attempts, resends                 uint16
		issued, expires, sent, lockedTill int64
	)
	rec := &Record{Status: Status(status)}
	for _, v := range []any{&attempts, &resends, &issued, &expires, &sent, &lockedTill, &rec.Version} {
		if err := binary.Read(reader, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}
	rec.AttemptCount = int(attempts)
	rec.ResendCount = int(resends)
	rec.IssuedAt = fromUnixNano(issued)
	rec.ExpiresAt = fromUnixNano(expires)
	rec.LastSentAt = fromUnixNano(sent)
	rec.LockedUntil = fromUnixNano(lockedTill)

	for _, dst := range []*string{&rec.VerificationID, &rec.Subject, &rec.Purpose, &rec.Channel} {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*dst = string(raw)
	}

	if _, err := io.ReadFull(reader, rec.SecretHash[:]); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errRecordEncoding
	}
	return rec, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
