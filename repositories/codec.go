package repositories

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the stored message record.
// Never renumber a field, only append new ones.
const (
	fieldID        protowire.Number = 1
	fieldTeam      protowire.Number = 2
	fieldUserID    protowire.Number = 3
	fieldUsername  protowire.Number = 4
	fieldText      protowire.Number = 5
	fieldCreatedAt protowire.Number = 6
)

// marshalMessage encodes a DiskMessage with the protobuf wire format.
func marshalMessage(m DiskMessage) []byte {
	b := make([]byte, 0, 64+len(m.Text))
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, m.ID[:])
	b = protowire.AppendTag(b, fieldTeam, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.TeamID))
	if m.UserID != "" {
		b = protowire.AppendTag(b, fieldUserID, protowire.BytesType)
		b = protowire.AppendString(b, m.UserID)
	}
	b = protowire.AppendTag(b, fieldUsername, protowire.BytesType)
	b = protowire.AppendString(b, m.Username)
	b = protowire.AppendTag(b, fieldText, protowire.BytesType)
	b = protowire.AppendString(b, m.Text)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreatedAt.UnixNano()))
	return b
}

// unmarshalMessage skips unknown fields so older binaries read newer records.
func unmarshalMessage(b []byte) (DiskMessage, error) {
	var m DiskMessage
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return DiskMessage{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return DiskMessage{}, protowire.ParseError(n)
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return DiskMessage{}, fmt.Errorf("invalid message id: %w", err)
			}
			m.ID = id
			b = b[n:]
		case num == fieldTeam && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return DiskMessage{}, protowire.ParseError(n)
			}
			m.TeamID = int(v)
			b = b[n:]
		case num == fieldUserID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return DiskMessage{}, protowire.ParseError(n)
			}
			m.UserID = v
			b = b[n:]
		case num == fieldUsername && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return DiskMessage{}, protowire.ParseError(n)
			}
			m.Username = v
			b = b[n:]
		case num == fieldText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return DiskMessage{}, protowire.ParseError(n)
			}
			m.Text = v
			b = b[n:]
		case num == fieldCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return DiskMessage{}, protowire.ParseError(n)
			}
			m.CreatedAt = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return DiskMessage{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if m.ID == uuid.Nil {
		return DiskMessage{}, fmt.Errorf("stored message without id")
	}
	return m, nil
}
