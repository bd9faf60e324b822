package cqltype

import (
	"bytes"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
)

func roundTrip(t *testing.T, ty Type, v interface{}) interface{} {
	t.Helper()
	b, err := Encode(ty, v)
	if err != nil {
		t.Fatalf("encode %v: %v", v, err)
	}
	got, err := Decode(ty, b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestScalarRoundTrips(t *testing.T) {
	if got := roundTrip(t, Simple(TagASCII), "hello"); got != "hello" {
		t.Fatalf("ascii: %v", got)
	}
	if got := roundTrip(t, Simple(TagBigint), int64(-9223372036854775000)); got != int64(-9223372036854775000) {
		t.Fatalf("bigint: %v", got)
	}
	if got := roundTrip(t, Simple(TagBlob), []byte{1, 2, 3}); !bytes.Equal(got.([]byte), []byte{1, 2, 3}) {
		t.Fatalf("blob: %v", got)
	}
	if got := roundTrip(t, Simple(TagBoolean), true); got != true {
		t.Fatalf("boolean: %v", got)
	}
	if got := roundTrip(t, Simple(TagDouble), 3.5); got != 3.5 {
		t.Fatalf("double: %v", got)
	}
	if got := roundTrip(t, Simple(TagFloat), float32(1.5)); math.Abs(float64(got.(float32))-1.5) > 1e-6 {
		t.Fatalf("float: %v", got)
	}
	if got := roundTrip(t, Simple(TagInt), int32(100)); got != int32(100) {
		t.Fatalf("int: %v", got)
	}
	now := time.UnixMilli(1700000000123).UTC()
	if got := roundTrip(t, Simple(TagTimestamp), now); !got.(time.Time).Equal(now) {
		t.Fatalf("timestamp: %v", got)
	}
	if got := roundTrip(t, Simple(TagVarchar), "varchar text"); got != "varchar text" {
		t.Fatalf("varchar: %v", got)
	}
	if got := roundTrip(t, Simple(TagVarint), big.NewInt(-4096)); got.(*big.Int).Cmp(big.NewInt(-4096)) != 0 {
		t.Fatalf("varint: %v", got)
	}
	id := uuid.New()
	if got := roundTrip(t, Simple(TagUUID), id); got.(uuid.UUID) != id {
		t.Fatalf("uuid: %v", got)
	}
}

func TestASCIIRejectsNonASCII(t *testing.T) {
	if _, err := Encode(Simple(TagASCII), "café"); err == nil {
		t.Fatal("expected error for non-ASCII input")
	}
}

func TestVarintBoundaries(t *testing.T) {
	cases := []struct {
		n    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{-1, []byte{0xFF}},
		{255, []byte{0x00, 0xFF}},
		{-255, []byte{0xFF, 0x01}},
	}
	for _, c := range cases {
		got := EncodeVarint(big.NewInt(c.n))
		if !bytes.Equal(got, c.want) {
			t.Errorf("EncodeVarint(%d) = % x, want % x", c.n, got, c.want)
		}
		back := DecodeVarint(got)
		if back.Int64() != c.n {
			t.Errorf("DecodeVarint(% x) = %d, want %d", got, back.Int64(), c.n)
		}
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	d := Decimal{Unscaled: big.NewInt(12345), Scale: 2}
	b, err := Encode(Simple(TagDecimal), d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(Simple(TagDecimal), b)
	if err != nil {
		t.Fatal(err)
	}
	gd := got.(Decimal)
	if gd.Scale != 2 || gd.Unscaled.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("decimal roundtrip: %+v", gd)
	}
}

func TestListRoundTrip(t *testing.T) {
	ty := Type{Tag: TagList, Elem: &Type{Tag: TagInt}}
	in := []interface{}{int32(1), int32(2), int32(3)}
	b, err := Encode(ty, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(ty, b)
	if err != nil {
		t.Fatal(err)
	}
	list := got.([]interface{})
	if len(list) != 3 || list[1].(int32) != 2 {
		t.Fatalf("list roundtrip: %v", list)
	}
}

func TestMapRoundTrip(t *testing.T) {
	ty := Type{Tag: TagMap, Elem: &Type{Tag: TagVarchar}, Value: &Type{Tag: TagInt}}
	in := map[interface{}]interface{}{"a": int32(1), "b": int32(2)}
	b, err := Encode(ty, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(ty, b)
	if err != nil {
		t.Fatal(err)
	}
	m := got.(map[interface{}]interface{})
	if m["a"].(int32) != 1 || m["b"].(int32) != 2 {
		t.Fatalf("map roundtrip: %v", m)
	}
}

func TestUnknownTagDecodesAsHex(t *testing.T) {
	got, err := Decode(Simple(Tag(0x9999)), []byte{0xAB, 0xCD})
	if err != nil {
		t.Fatal(err)
	}
	if got != "abcd" {
		t.Fatalf("expected hex fallback, got %v", got)
	}
}

func TestUnknownTagEncodeFails(t *testing.T) {
	if _, err := Encode(Simple(Tag(0x9999)), "x"); err == nil {
		t.Fatal("expected error encoding unknown tag")
	}
}
