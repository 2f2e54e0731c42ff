package curve

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	p := ScalarBaseMult(HashToScalar([]byte("round-trip-seed")))
	enc := Compress(p)
	if len(enc) != PointSize {
		t.Fatalf("expected %d-byte encoding, got %d", PointSize, len(enc))
	}

	dec, err := Decompress(enc)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(Compress(dec), enc) {
		t.Fatal("decompressed point does not re-encode to the same bytes")
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xFF}, PointSize)
	if _, err := Decompress(garbage); err == nil {
		t.Fatal("expected decompression of non-canonical bytes to fail")
	}
}

func TestHashToPointIsDeterministic(t *testing.T) {
	a := HashToPoint([]byte("same-input"))
	b := HashToPoint([]byte("same-input"))
	if !bytes.Equal(Compress(a), Compress(b)) {
		t.Fatal("hash_to_point is not deterministic")
	}
}

func TestHashToPointIsDomainSeparatedFromRawInput(t *testing.T) {
	input := []byte("input")
	viaPrefixed := HashToPoint(input)
	unprefixed := HashToScalar(input) // different function entirely, sanity check it's not equal by chance
	if bytes.Equal(Compress(viaPrefixed), EncodeScalar(unprefixed)) {
		t.Fatal("hash_to_point collided with hash_to_scalar output, domain separation broken")
	}
}

func TestScalarArithmeticAssociatesWithGroup(t *testing.T) {
	a := HashToScalar([]byte("a"))
	b := HashToScalar([]byte("b"))
	sum := AddScalars(a, b)

	lhs := ScalarBaseMult(sum)
	rhs := Add(ScalarBaseMult(a), ScalarBaseMult(b))
	if !bytes.Equal(Compress(lhs), Compress(rhs)) {
		t.Fatal("(a+b)*G != a*G + b*G")
	}
}
