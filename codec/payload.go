// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/luxfi/groupcrdt/ids"
)

// PayloadTag discriminates the nine op payload variants.
type PayloadTag uint8

const (
	TagGroupCreate PayloadTag = iota + 1
	TagMemberInvite
	TagMemberAccept
	TagMemberRemove
	TagMsgAdd
	TagMsgEdit
	TagMsgDelete
	TagReactionSet
	TagMetadataSet
)

// Role is a member's privilege level within a group.
type Role uint8

const (
	RoleMember Role = 1
	RoleAdmin  Role = 2
)

// RemoveReason distinguishes an admin kick from a voluntary leave.
type RemoveReason uint8

const (
	ReasonKick  RemoveReason = 1
	ReasonLeave RemoveReason = 2
)

// MetadataKey names the LWW metadata registers a group carries.
type MetadataKey uint8

const (
	MetaName MetadataKey = iota + 1
	MetaTopic
	MetaAvatar
)

// Payload is implemented by every op payload variant.
type Payload interface {
	Tag() PayloadTag
	Encode() []byte
}

func putBytes32(buf []byte, off int, b []byte) int {
	binary.BigEndian.PutUint32(buf[off:], uint32(len(b)))
	off += 4
	copy(buf[off:], b)
	return off + len(b)
}

func readBytes32(b []byte, off int) (out []byte, next int, err error) {
	if off+4 > len(b) {
		return nil, 0, ErrTruncated
	}
	n := binary.BigEndian.Uint32(b[off:])
	off += 4
	if n > MaxOpSize || off+int(n) > len(b) {
		return nil, 0, ErrTruncated
	}
	return append([]byte(nil), b[off:off+int(n)]...), off + int(n), nil
}

func readOpID(b []byte, off int) (ids.OpID, int, error) {
	const opIDLen = 32 + 8 + 16
	if off+opIDLen > len(b) {
		return ids.OpID{}, 0, ErrTruncated
	}
	var id ids.OpID
	copy(id.Author[:], b[off:off+32])
	off += 32
	id.Lamport = ids.Lamport(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	copy(id.Nonce[:], b[off:off+16])
	off += 16
	return id, off, nil
}

func putOpID(buf []byte, off int, id ids.OpID) int {
	copy(buf[off:], id.Author[:])
	off += 32
	binary.BigEndian.PutUint64(buf[off:], uint64(id.Lamport))
	off += 8
	copy(buf[off:], id.Nonce[:])
	return off + 16
}

// --- GroupCreate ---

type GroupCreate struct {
	GroupName          string
	InitialGroupSecret [32]byte
}

func (GroupCreate) Tag() PayloadTag { return TagGroupCreate }

func (p GroupCreate) Encode() []byte {
	name := []byte(p.GroupName)
	buf := make([]byte, 4+len(name)+32)
	off := putBytes32(buf, 0, name)
	copy(buf[off:], p.InitialGroupSecret[:])
	return buf
}

func decodeGroupCreate(b []byte) (GroupCreate, error) {
	var p GroupCreate
	name, off, err := readBytes32(b, 0)
	if err != nil {
		return p, err
	}
	if off+32 != len(b) {
		return p, ErrTruncated
	}
	p.GroupName = string(name)
	copy(p.InitialGroupSecret[:], b[off:off+32])
	return p, nil
}

// --- MemberInvite ---

type MemberInvite struct {
	InvitedPubkey      ids.DeviceID
	Role               Role
	WrappedGroupSecret []byte
}

func (MemberInvite) Tag() PayloadTag { return TagMemberInvite }

func (p MemberInvite) Encode() []byte {
	buf := make([]byte, 32+1+4+len(p.WrappedGroupSecret))
	off := 0
	copy(buf[off:], p.InvitedPubkey[:])
	off += 32
	buf[off] = byte(p.Role)
	off++
	putBytes32(buf, off, p.WrappedGroupSecret)
	return buf
}

func decodeMemberInvite(b []byte) (MemberInvite, error) {
	var p MemberInvite
	if len(b) < 33 {
		return p, ErrTruncated
	}
	copy(p.InvitedPubkey[:], b[0:32])
	p.Role = Role(b[32])
	wrapped, off, err := readBytes32(b, 33)
	if err != nil {
		return p, err
	}
	if off != len(b) {
		return p, ErrTruncated
	}
	p.WrappedGroupSecret = wrapped
	return p, nil
}

// --- MemberAccept ---

type MemberAccept struct {
	InviteOpID ids.OpID
}

func (MemberAccept) Tag() PayloadTag { return TagMemberAccept }

func (p MemberAccept) Encode() []byte {
	buf := make([]byte, 32+8+16)
	putOpID(buf, 0, p.InviteOpID)
	return buf
}

func decodeMemberAccept(b []byte) (MemberAccept, error) {
	var p MemberAccept
	id, off, err := readOpID(b, 0)
	if err != nil {
		return p, err
	}
	if off != len(b) {
		return p, ErrTruncated
	}
	p.InviteOpID = id
	return p, nil
}

// --- MemberRemove ---

type MemberRemove struct {
	Target ids.DeviceID
	Reason RemoveReason
}

func (MemberRemove) Tag() PayloadTag { return TagMemberRemove }

func (p MemberRemove) Encode() []byte {
	buf := make([]byte, 32+1)
	copy(buf[0:32], p.Target[:])
	buf[32] = byte(p.Reason)
	return buf
}

func decodeMemberRemove(b []byte) (MemberRemove, error) {
	var p MemberRemove
	if len(b) != 33 {
		return p, ErrTruncated
	}
	copy(p.Target[:], b[0:32])
	p.Reason = RemoveReason(b[32])
	return p, nil
}

// --- MsgAdd ---

type MsgAdd struct {
	Ciphertext []byte
	Nonce      [24]byte
}

func (MsgAdd) Tag() PayloadTag { return TagMsgAdd }

func (p MsgAdd) Encode() []byte {
	buf := make([]byte, 4+len(p.Ciphertext)+24)
	off := putBytes32(buf, 0, p.Ciphertext)
	copy(buf[off:], p.Nonce[:])
	return buf
}

func decodeMsgAdd(b []byte) (MsgAdd, error) {
	var p MsgAdd
	ct, off, err := readBytes32(b, 0)
	if err != nil {
		return p, err
	}
	if off+24 != len(b) {
		return p, ErrTruncated
	}
	p.Ciphertext = ct
	copy(p.Nonce[:], b[off:off+24])
	return p, nil
}

// --- MsgEdit ---

type MsgEdit struct {
	TargetMsgID   ids.OpID
	NewCiphertext []byte
	NewNonce      [24]byte
}

func (MsgEdit) Tag() PayloadTag { return TagMsgEdit }

func (p MsgEdit) Encode() []byte {
	buf := make([]byte, 56+4+len(p.NewCiphertext)+24)
	off := putOpID(buf, 0, p.TargetMsgID)
	off = putBytes32(buf, off, p.NewCiphertext)
	copy(buf[off:], p.NewNonce[:])
	return buf
}

func decodeMsgEdit(b []byte) (MsgEdit, error) {
	var p MsgEdit
	id, off, err := readOpID(b, 0)
	if err != nil {
		return p, err
	}
	ct, off2, err := readBytes32(b, off)
	if err != nil {
		return p, err
	}
	if off2+24 != len(b) {
		return p, ErrTruncated
	}
	p.TargetMsgID = id
	p.NewCiphertext = ct
	copy(p.NewNonce[:], b[off2:off2+24])
	return p, nil
}

// --- MsgDelete ---

type MsgDelete struct {
	TargetMsgID ids.OpID
}

func (MsgDelete) Tag() PayloadTag { return TagMsgDelete }

func (p MsgDelete) Encode() []byte {
	buf := make([]byte, 56)
	putOpID(buf, 0, p.TargetMsgID)
	return buf
}

func decodeMsgDelete(b []byte) (MsgDelete, error) {
	var p MsgDelete
	id, off, err := readOpID(b, 0)
	if err != nil {
		return p, err
	}
	if off != len(b) {
		return p, ErrTruncated
	}
	p.TargetMsgID = id
	return p, nil
}

// --- ReactionSet ---

type ReactionSet struct {
	TargetMsgID ids.OpID
	Emoji       string
	Present     bool
}

func (ReactionSet) Tag() PayloadTag { return TagReactionSet }

func (p ReactionSet) Encode() []byte {
	emoji := []byte(p.Emoji)
	buf := make([]byte, 56+4+len(emoji)+1)
	off := putOpID(buf, 0, p.TargetMsgID)
	off = putBytes32(buf, off, emoji)
	if p.Present {
		buf[off] = 1
	}
	return buf
}

func decodeReactionSet(b []byte) (ReactionSet, error) {
	var p ReactionSet
	id, off, err := readOpID(b, 0)
	if err != nil {
		return p, err
	}
	emoji, off2, err := readBytes32(b, off)
	if err != nil {
		return p, err
	}
	if off2+1 != len(b) {
		return p, ErrTruncated
	}
	if !utf8.Valid(emoji) {
		return p, errors.New("codec: reaction emoji is not valid utf-8")
	}
	p.TargetMsgID = id
	p.Emoji = string(emoji)
	p.Present = b[off2] != 0
	return p, nil
}

// --- MetadataSet ---

type MetadataSet struct {
	Key   MetadataKey
	Value []byte
}

func (MetadataSet) Tag() PayloadTag { return TagMetadataSet }

func (p MetadataSet) Encode() []byte {
	buf := make([]byte, 1+4+len(p.Value))
	buf[0] = byte(p.Key)
	putBytes32(buf, 1, p.Value)
	return buf
}

func decodeMetadataSet(b []byte) (MetadataSet, error) {
	var p MetadataSet
	if len(b) < 1 {
		return p, ErrTruncated
	}
	key := MetadataKey(b[0])
	val, off, err := readBytes32(b, 1)
	if err != nil {
		return p, err
	}
	if off != len(b) {
		return p, ErrTruncated
	}
	p.Key = key
	p.Value = val
	return p, nil
}

// DecodePayload decodes the raw payload bytes of an envelope according
// to its tag.
func DecodePayload(tag PayloadTag, b []byte) (Payload, error) {
	switch tag {
	case TagGroupCreate:
		return decodeGroupCreate(b)
	case TagMemberInvite:
		return decodeMemberInvite(b)
	case TagMemberAccept:
		return decodeMemberAccept(b)
	case TagMemberRemove:
		return decodeMemberRemove(b)
	case TagMsgAdd:
		return decodeMsgAdd(b)
	case TagMsgEdit:
		return decodeMsgEdit(b)
	case TagMsgDelete:
		return decodeMsgDelete(b)
	case TagReactionSet:
		return decodeReactionSet(b)
	case TagMetadataSet:
		return decodeMetadataSet(b)
	default:
		return nil, ErrUnknownVariant
	}
}
