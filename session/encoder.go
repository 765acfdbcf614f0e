package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// CurrentSchemaVersion is written by Encode.
	CurrentSchemaVersion uint8 = 2

	sessionFormatVersionV1 uint8 = 1

	defaultTokenType = "bearer"
)

// Encode writes s in the current binary schema. Short fields carry a one
// byte length, tokens a two byte length.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}

	var buf bytes.Buffer
	buf.WriteByte(CurrentSchemaVersion)

	if err := writeShort(&buf, "identityID", s.IdentityID); err != nil {
		return nil, err
	}
	if err := writeShort(&buf, "email", s.Email); err != nil {
		return nil, err
	}
	if err := writeShort(&buf, "tokenType", s.TokenType); err != nil {
		return nil, err
	}
	if err := writeLong(&buf, "accessToken", s.AccessToken); err != nil {
		return nil, err
	}
	if err := writeLong(&buf, "refreshToken", s.RefreshToken); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, s.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode reads any supported schema version. Version 1 blobs predate the
// email and token type fields.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion && version != sessionFormatVersionV1 {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrSessionCorrupt, version)
	}

	s := &Session{SchemaVersion: version}

	if s.IdentityID, err = readShort(reader); err != nil {
		return nil, err
	}
	if version == CurrentSchemaVersion {
		if s.Email, err = readShort(reader); err != nil {
			return nil, err
		}
		if s.TokenType, err = readShort(reader); err != nil {
			return nil, err
		}
	}
	if s.TokenType == "" {
		s.TokenType = defaultTokenType
	}

	if s.AccessToken, err = readLong(reader); err != nil {
		return nil, err
	}
	if s.RefreshToken, err = readLong(reader); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &s.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	return s, nil
}

func writeShort(buf *bytes.Buffer, field, v string) error {
	if len(v) > math.MaxUint8 {
		return fmt.Errorf("%s too long", field)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func writeLong(buf *bytes.Buffer, field, v string) error {
	if len(v) > math.MaxUint16 {
		return fmt.Errorf("%s too long", field)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readShort(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readLong(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
