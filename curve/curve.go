// Package curve wraps the Ristretto prime-order group primitives the VRF
// core is built on: point addition, scalar multiplication, compression,
// and the two domain-separated hash functions the protocol needs.
package curve

import (
	"crypto/sha512"

	"github.com/gtank/ristretto255"
)

// Domain-separation prefixes. These must never be reused across contexts;
// sharing one hash function across two of these would let an attacker
// repurpose one proof component as another.
const (
	PrefixHashToPoint = "VRF-Ephem-HashToPoint"
	PrefixNonce       = "VRF-Ephem-Nonce"
	PrefixChallenge   = "VRF-Ephem-Challenge"
)

// PointSize and ScalarSize are the compressed wire sizes of a Ristretto
// point and scalar, respectively.
const (
	PointSize  = 32
	ScalarSize = 32
)

// Point is a Ristretto group element.
type Point = ristretto255.Point

// Scalar is an integer modulo the group order.
type Scalar = ristretto255.Scalar

// Basepoint returns the group's fixed generator G.
func Basepoint() *Point {
	return ristretto255.NewGeneratorPoint()
}

// NewScalar allocates a zero scalar.
func NewScalar() *Scalar {
	return ristretto255.NewScalar()
}

// NewPoint allocates the identity point.
func NewPoint() *Point {
	return ristretto255.NewIdentityPoint()
}

// Add returns a+b as a new point.
func Add(a, b *Point) *Point {
	return ristretto255.NewIdentityPoint().Add(a, b)
}

// ScalarMult returns s*p as a new point.
func ScalarMult(s *Scalar, p *Point) *Point {
	return ristretto255.NewIdentityPoint().ScalarMult(s, p)
}

// ScalarBaseMult returns s*G as a new point.
func ScalarBaseMult(s *Scalar) *Point {
	return ristretto255.NewIdentityPoint().ScalarBaseMult(s)
}

// AddScalars returns a+b mod order as a new scalar.
func AddScalars(a, b *Scalar) *Scalar {
	return ristretto255.NewScalar().Add(a, b)
}

// MultiplyScalars returns a*b mod order as a new scalar.
func MultiplyScalars(a, b *Scalar) *Scalar {
	return ristretto255.NewScalar().Multiply(a, b)
}

// Compress encodes p to its 32-byte canonical form.
func Compress(p *Point) []byte {
	return p.Encode(make([]byte, 0, PointSize))
}

// Decompress decodes a 32-byte canonical point encoding. It fails closed:
// any malformed or non-canonical encoding is rejected rather than mapped
// to the nearest valid point.
func Decompress(b []byte) (*Point, error) {
	p := ristretto255.NewIdentityPoint()
	if err := p.Decode(b); err != nil {
		return nil, err
	}
	return p, nil
}

// EncodeScalar serializes s to its 32-byte little-endian form.
func EncodeScalar(s *Scalar) []byte {
	return s.Encode(make([]byte, 0, ScalarSize))
}

// DecodeScalar parses a 32-byte little-endian scalar encoding, reduced
// modulo the group order on input already (Decode rejects out-of-range
// encodings rather than silently reducing them).
func DecodeScalar(b []byte) (*Scalar, error) {
	s := ristretto255.NewScalar()
	if err := s.Decode(b); err != nil {
		return nil, err
	}
	return s, nil
}

// HashToScalar reduces an arbitrary-length digest modulo the group order.
// The input is first expanded to 64 bytes via SHA-512 so that the
// reduction has the uniformity the group's wide-reduction routine expects.
func HashToScalar(data []byte) *Scalar {
	sum := sha512.Sum512(data)
	return ristretto255.NewScalar().FromUniformBytes(sum[:])
}

// HashToPoint maps an input to a Ristretto point using the uniform-bytes
// construction: a domain-separated SHA-512 of the input is expanded
// directly into a group element, with no rejection sampling.
func HashToPoint(input []byte) *Point {
	h := sha512.New()
	h.Write([]byte(PrefixHashToPoint))
	h.Write(input)
	return ristretto255.NewIdentityPoint().FromUniformBytes(h.Sum(nil))
}
