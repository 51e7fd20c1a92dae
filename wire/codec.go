// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Interner is the minimal string-deduplication contract the codec needs
// from a changeset (spec.md §4.2): every identifier or string payload is
// referenced by index, and logical equality is always by content, never by
// index, since merges may renumber (spec.md §3 interning invariant (b)).
type Interner interface {
	Intern(s string) int
	Lookup(idx int) (string, error)
}

// ErrBadFormat is returned by Decode for any malformed or truncated input,
// or an unrecognized tag byte. Decoders never skip unknown tags (spec.md §4.1).
var ErrBadFormat = errors.New("wire: bad format")

// tag bytes for the instruction stream (spec.md §4.1: "each instruction
// opens with a tag byte").
const (
	tagAddTable uint8 = iota + 1
	tagEraseTable
	tagAddColumn
	tagEraseColumn
	tagCreateObject
	tagEraseObject
	tagUpdate
	tagAddInteger
	tagArrayInsert
	tagArrayMove
	tagArrayErase
	tagClear
	tagSetInsert
	tagSetErase
)

// payload tag bytes, encoded immediately before a payload's value (spec.md
// §4.1: "Payload type is encoded by a second byte before the value").
const (
	ptagNull uint8 = iota
	ptagInt
	ptagBool
	ptagFloat
	ptagDouble
	ptagString
	ptagBinary
	ptagTimestamp
	ptagDecimal
	ptagObjectID
	ptagUUID
	ptagLink
	ptagTypedLink
	ptagOpenList
	ptagOpenDictionary
)

// subpath tag bytes.
const (
	stagKey uint8 = iota
	stagIndex
)

// --- low-level primitives ---

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r io.ByteReader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, errors.Wrap(ErrBadFormat, err.Error())
	}
	return v, nil
}

func readVarint(r io.ByteReader) (int64, error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, errors.Wrap(ErrBadFormat, err.Error())
	}
	return v, nil
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(ErrBadFormat, err.Error())
	}
	return out, nil
}

func putString(buf *bytes.Buffer, interner Interner, s string) {
	putUvarint(buf, uint64(interner.Intern(s)))
}

func readString(r *bytes.Reader, interner Interner) (string, error) {
	idx, err := readUvarint(r)
	if err != nil {
		return "", err
	}
	s, err := interner.Lookup(int(idx))
	if err != nil {
		return "", errors.Wrap(ErrBadFormat, err.Error())
	}
	return s, nil
}

// --- path ---

func encodePath(buf *bytes.Buffer, interner Interner, p Path) {
	putString(buf, interner, p.Table)
	buf.WriteByte(boolByte(p.Object.HasPK))
	if p.Object.HasPK {
		encodePayload(buf, interner, p.Object.PK)
	} else {
		putUvarint(buf, p.Object.High)
		putUvarint(buf, p.Object.Low)
	}
	putString(buf, interner, p.Field)
	putUvarint(buf, uint64(len(p.Tail)))
	for _, sp := range p.Tail {
		if sp.Kind == SubPathKey {
			buf.WriteByte(stagKey)
			putString(buf, interner, sp.Key)
		} else {
			buf.WriteByte(stagIndex)
			putVarint(buf, sp.Index)
		}
	}
}

func decodePath(r *bytes.Reader, interner Interner) (Path, error) {
	var p Path
	table, err := readString(r, interner)
	if err != nil {
		return p, err
	}
	hasPK, err := r.ReadByte()
	if err != nil {
		return p, errors.Wrap(ErrBadFormat, err.Error())
	}
	var obj GlobalKey
	if hasPK != 0 {
		obj.HasPK = true
		obj.PK, err = decodePayload(r, interner)
		if err != nil {
			return p, err
		}
	} else {
		obj.High, err = readUvarint(r)
		if err != nil {
			return p, err
		}
		obj.Low, err = readUvarint(r)
		if err != nil {
			return p, err
		}
	}
	field, err := readString(r, interner)
	if err != nil {
		return p, err
	}
	n, err := readUvarint(r)
	if err != nil {
		return p, err
	}
	tail := make([]SubPath, 0, n)
	for i := uint64(0); i < n; i++ {
		tb, err := r.ReadByte()
		if err != nil {
			return p, errors.Wrap(ErrBadFormat, err.Error())
		}
		switch tb {
		case stagKey:
			k, err := readString(r, interner)
			if err != nil {
				return p, err
			}
			tail = append(tail, Key(k))
		case stagIndex:
			idx, err := readVarint(r)
			if err != nil {
				return p, err
			}
			tail = append(tail, Index(idx))
		default:
			return p, errors.Wrapf(ErrBadFormat, "unknown subpath tag %d", tb)
		}
	}
	p.Table, p.Object, p.Field, p.Tail = table, obj, field, tail
	return p, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// --- payload ---

func encodePayload(buf *bytes.Buffer, interner Interner, p Payload) {
	switch p.Kind {
	case KindNull:
		buf.WriteByte(ptagNull)
	case KindInt:
		buf.WriteByte(ptagInt)
		putVarint(buf, p.Int)
	case KindBool:
		buf.WriteByte(ptagBool)
		buf.WriteByte(boolByte(p.Bool))
	case KindFloat:
		buf.WriteByte(ptagFloat)
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(p.Float))
		buf.Write(tmp[:])
	case KindDouble:
		buf.WriteByte(ptagDouble)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(p.Double))
		buf.Write(tmp[:])
	case KindString:
		buf.WriteByte(ptagString)
		putString(buf, interner, p.Str)
	case KindBinary:
		buf.WriteByte(ptagBinary)
		putBytes(buf, p.Binary)
	case KindTimestamp:
		buf.WriteByte(ptagTimestamp)
		putVarint(buf, p.Timestamp)
	case KindDecimal:
		buf.WriteByte(ptagDecimal)
		putVarint(buf, int64(p.Decimal.Exponent()))
		putBytes(buf, p.Decimal.Coefficient().Bytes())
		buf.WriteByte(boolByte(p.Decimal.Coefficient().Sign() < 0))
	case KindObjectID:
		buf.WriteByte(ptagObjectID)
		buf.Write(p.ObjectID[:])
	case KindUUID:
		buf.WriteByte(ptagUUID)
		raw, _ := p.UUID.MarshalBinary()
		buf.Write(raw)
	case KindLink:
		buf.WriteByte(ptagLink)
		putString(buf, interner, p.Link.Table)
		encodeGlobalKey(buf, interner, p.Link.Key)
	case KindTypedLink:
		buf.WriteByte(ptagTypedLink)
		putString(buf, interner, p.TypedLinkTable)
		encodeGlobalKey(buf, interner, p.Link.Key)
	case KindOpenList:
		buf.WriteByte(ptagOpenList)
	case KindOpenDictionary:
		buf.WriteByte(ptagOpenDictionary)
	}
}

func encodeGlobalKey(buf *bytes.Buffer, interner Interner, k GlobalKey) {
	buf.WriteByte(boolByte(k.HasPK))
	if k.HasPK {
		encodePayload(buf, interner, k.PK)
	} else {
		putUvarint(buf, k.High)
		putUvarint(buf, k.Low)
	}
}

func decodeGlobalKey(r *bytes.Reader, interner Interner) (GlobalKey, error) {
	var k GlobalKey
	b, err := r.ReadByte()
	if err != nil {
		return k, errors.Wrap(ErrBadFormat, err.Error())
	}
	if b != 0 {
		k.HasPK = true
		k.PK, err = decodePayload(r, interner)
		return k, err
	}
	if k.High, err = readUvarint(r); err != nil {
		return k, err
	}
	if k.Low, err = readUvarint(r); err != nil {
		return k, err
	}
	return k, nil
}

func decodePayload(r *bytes.Reader, interner Interner) (Payload, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Payload{}, errors.Wrap(ErrBadFormat, err.Error())
	}
	switch tag {
	case ptagNull:
		return Null(), nil
	case ptagInt:
		v, err := readVarint(r)
		return Payload{Kind: KindInt, Int: v}, err
	case ptagBool:
		b, err := r.ReadByte()
		if err != nil {
			return Payload{}, errors.Wrap(ErrBadFormat, err.Error())
		}
		return Payload{Kind: KindBool, Bool: b != 0}, nil
	case ptagFloat:
		var tmp [4]byte
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return Payload{}, errors.Wrap(ErrBadFormat, err.Error())
		}
		return Payload{Kind: KindFloat, Float: math.Float32frombits(binary.LittleEndian.Uint32(tmp[:]))}, nil
	case ptagDouble:
		var tmp [8]byte
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return Payload{}, errors.Wrap(ErrBadFormat, err.Error())
		}
		return Payload{Kind: KindDouble, Double: math.Float64frombits(binary.LittleEndian.Uint64(tmp[:]))}, nil
	case ptagString:
		s, err := readString(r, interner)
		return Payload{Kind: KindString, Str: s}, err
	case ptagBinary:
		b, err := readBytes(r)
		return Payload{Kind: KindBinary, Binary: b}, err
	case ptagTimestamp:
		v, err := readVarint(r)
		return Payload{Kind: KindTimestamp, Timestamp: v}, err
	case ptagDecimal:
		exp, err := readVarint(r)
		if err != nil {
			return Payload{}, err
		}
		coeffBytes, err := readBytes(r)
		if err != nil {
			return Payload{}, err
		}
		neg, err := r.ReadByte()
		if err != nil {
			return Payload{}, errors.Wrap(ErrBadFormat, err.Error())
		}
		var coeff big.Int
		coeff.SetBytes(coeffBytes)
		if neg != 0 {
			coeff.Neg(&coeff)
		}
		return Payload{Kind: KindDecimal, Decimal: decimal.NewFromBigInt(&coeff, int32(exp))}, nil
	case ptagObjectID:
		var oid ObjectID
		if _, err := io.ReadFull(r, oid[:]); err != nil {
			return Payload{}, errors.Wrap(ErrBadFormat, err.Error())
		}
		return Payload{Kind: KindObjectID, ObjectID: oid}, nil
	case ptagUUID:
		var raw [16]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return Payload{}, errors.Wrap(ErrBadFormat, err.Error())
		}
		id, err := uuid.FromBytes(raw[:])
		if err != nil {
			return Payload{}, errors.Wrap(ErrBadFormat, err.Error())
		}
		return Payload{Kind: KindUUID, UUID: id}, nil
	case ptagLink:
		table, err := readString(r, interner)
		if err != nil {
			return Payload{}, err
		}
		key, err := decodeGlobalKey(r, interner)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Kind: KindLink, Link: Link{Table: table, Key: key}}, nil
	case ptagTypedLink:
		table, err := readString(r, interner)
		if err != nil {
			return Payload{}, err
		}
		key, err := decodeGlobalKey(r, interner)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Kind: KindTypedLink, TypedLinkTable: table, Link: Link{Key: key}}, nil
	case ptagOpenList:
		return OpenList(), nil
	case ptagOpenDictionary:
		return OpenDictionary(), nil
	default:
		return Payload{}, errors.Wrapf(ErrBadFormat, "unknown payload tag %d", tag)
	}
}

// --- instruction ---

// Encode writes a single instruction in the bit-exact binary form described
// in spec.md §4.1. Re-encoding a decoded instruction yields identical bytes
// (pinned by the codec round-trip property, spec.md §8).
func Encode(w io.Writer, interner Interner, instr Instruction) error {
	var buf bytes.Buffer
	switch v := instr.(type) {
	case *AddTable:
		buf.WriteByte(tagAddTable)
		encodePath(&buf, interner, v.PathV)
		putString(&buf, interner, v.PrimaryKeyCol)
		buf.WriteByte(boolByte(v.Embedded))
	case *EraseTable:
		buf.WriteByte(tagEraseTable)
		encodePath(&buf, interner, v.PathV)
	case *AddColumn:
		buf.WriteByte(tagAddColumn)
		encodePath(&buf, interner, v.PathV)
		buf.WriteByte(uint8(v.Type))
		buf.WriteByte(boolByte(v.Nullable))
		buf.WriteByte(uint8(v.Collection))
		putString(&buf, interner, v.LinkTarget)
		buf.WriteByte(boolByte(v.IsPrimary))
	case *EraseColumn:
		buf.WriteByte(tagEraseColumn)
		encodePath(&buf, interner, v.PathV)
	case *CreateObject:
		buf.WriteByte(tagCreateObject)
		encodePath(&buf, interner, v.PathV)
		encodePayload(&buf, interner, v.PrimaryKey)
	case *EraseObject:
		buf.WriteByte(tagEraseObject)
		encodePath(&buf, interner, v.PathV)
	case *Update:
		buf.WriteByte(tagUpdate)
		encodePath(&buf, interner, v.PathV)
		encodePayload(&buf, interner, v.Value)
		buf.WriteByte(boolByte(v.IsDefault))
		if v.PendingAdd != nil {
			buf.WriteByte(1)
			putVarint(&buf, *v.PendingAdd)
		} else {
			buf.WriteByte(0)
		}
	case *AddInteger:
		buf.WriteByte(tagAddInteger)
		encodePath(&buf, interner, v.PathV)
		putVarint(&buf, v.Delta)
	case *ArrayInsert:
		buf.WriteByte(tagArrayInsert)
		encodePath(&buf, interner, v.PathV)
		encodePayload(&buf, interner, v.Value)
		putVarint(&buf, v.PriorSize)
	case *ArrayMove:
		buf.WriteByte(tagArrayMove)
		encodePath(&buf, interner, v.PathV)
		putVarint(&buf, v.To)
	case *ArrayErase:
		buf.WriteByte(tagArrayErase)
		encodePath(&buf, interner, v.PathV)
		putVarint(&buf, v.PriorSize)
	case *Clear:
		buf.WriteByte(tagClear)
		encodePath(&buf, interner, v.PathV)
	case *SetInsert:
		buf.WriteByte(tagSetInsert)
		encodePath(&buf, interner, v.PathV)
		encodePayload(&buf, interner, v.Element)
	case *SetErase:
		buf.WriteByte(tagSetErase)
		encodePath(&buf, interner, v.PathV)
		encodePayload(&buf, interner, v.Element)
	default:
		return errors.Errorf("wire: unknown instruction type %T", instr)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Decode reads a single instruction. Unknown tag bytes fail with
// ErrBadFormat; decoders never skip (spec.md §4.1).
func Decode(r *bytes.Reader, interner Interner) (Instruction, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(ErrBadFormat, err.Error())
	}
	switch tag {
	case tagAddTable:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		pk, err := readString(r, interner)
		if err != nil {
			return nil, err
		}
		emb, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(ErrBadFormat, err.Error())
		}
		return &AddTable{PathV: p, PrimaryKeyCol: pk, Embedded: emb != 0}, nil
	case tagEraseTable:
		p, err := decodePath(r, interner)
		return &EraseTable{PathV: p}, err
	case tagAddColumn:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		ct, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(ErrBadFormat, err.Error())
		}
		nullable, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(ErrBadFormat, err.Error())
		}
		coll, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(ErrBadFormat, err.Error())
		}
		target, err := readString(r, interner)
		if err != nil {
			return nil, err
		}
		isPK, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(ErrBadFormat, err.Error())
		}
		return &AddColumn{PathV: p, Type: ColumnType(ct), Nullable: nullable != 0,
			Collection: CollectionKind(coll), LinkTarget: target, IsPrimary: isPK != 0}, nil
	case tagEraseColumn:
		p, err := decodePath(r, interner)
		return &EraseColumn{PathV: p}, err
	case tagCreateObject:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		pk, err := decodePayload(r, interner)
		return &CreateObject{PathV: p, PrimaryKey: pk}, err
	case tagEraseObject:
		p, err := decodePath(r, interner)
		return &EraseObject{PathV: p}, err
	case tagUpdate:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		val, err := decodePayload(r, interner)
		if err != nil {
			return nil, err
		}
		isDefault, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(ErrBadFormat, err.Error())
		}
		hasAdd, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(ErrBadFormat, err.Error())
		}
		var add *int64
		if hasAdd != 0 {
			d, err := readVarint(r)
			if err != nil {
				return nil, err
			}
			add = &d
		}
		return &Update{PathV: p, Value: val, IsDefault: isDefault != 0, PendingAdd: add}, nil
	case tagAddInteger:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		d, err := readVarint(r)
		return &AddInteger{PathV: p, Delta: d}, err
	case tagArrayInsert:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		val, err := decodePayload(r, interner)
		if err != nil {
			return nil, err
		}
		sz, err := readVarint(r)
		return &ArrayInsert{PathV: p, Value: val, PriorSize: sz}, err
	case tagArrayMove:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		to, err := readVarint(r)
		return &ArrayMove{PathV: p, To: to}, err
	case tagArrayErase:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		sz, err := readVarint(r)
		return &ArrayErase{PathV: p, PriorSize: sz}, err
	case tagClear:
		p, err := decodePath(r, interner)
		return &Clear{PathV: p}, err
	case tagSetInsert:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		el, err := decodePayload(r, interner)
		return &SetInsert{PathV: p, Element: el}, err
	case tagSetErase:
		p, err := decodePath(r, interner)
		if err != nil {
			return nil, err
		}
		el, err := decodePayload(r, interner)
		return &SetErase{PathV: p, Element: el}, err
	default:
		return nil, errors.Wrapf(ErrBadFormat, "unknown instruction tag %d", tag)
	}
}
