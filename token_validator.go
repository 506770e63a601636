package iam

// TokenDecoder verifies bearer tokens and returns typed claims without tying
// callers to a specific signing implementation.
type TokenDecoder interface {
	Decode(tokenString string) (*Claims, error)
}

// TokenDecoderFunc adapts a function into a TokenDecoder.
type TokenDecoderFunc func(tokenString string) (*Claims, error)

// Decode satisfies the TokenDecoder interface.
func (f TokenDecoderFunc) Decode(tokenString string) (*Claims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

var _ TokenDecoder = (*TokenService)(nil)

// MultiTokenDecoder tries decoders in order until one succeeds. It is used
// during signing key rotation, where tokens signed with the previous key stay
// valid until they expire.
// Malformed errors mean "try next"; any other error (e.g. expired) stops.
type MultiTokenDecoder struct {
	decoders []TokenDecoder
}

// NewMultiTokenDecoder filters nil decoders and returns a composite decoder.
func NewMultiTokenDecoder(decoders ...TokenDecoder) *MultiTokenDecoder {
	filtered := make([]TokenDecoder, 0, len(decoders))
	for _, d := range decoders {
		if d != nil {
			filtered = append(filtered, d)
		}
	}
	return &MultiTokenDecoder{decoders: filtered}
}

// Decode satisfies the TokenDecoder interface.
func (m *MultiTokenDecoder) Decode(tokenString string) (*Claims, error) {
	var lastErr error
	for _, d := range m.decoders {
		claims, err := d.Decode(tokenString)
		if err == nil {
			return claims, nil
		}
		if IsMalformedError(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}
