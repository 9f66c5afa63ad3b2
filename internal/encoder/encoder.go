package encoder

import "context"

// Encoder converts free text into a fixed-length numeric vector. Vectors are
// only comparable between encoders reporting the same Version.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Version() string
}

// EncodeAll encodes every text in order, producing a row-aligned matrix.
func EncodeAll(ctx context.Context, enc Encoder, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := enc.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
