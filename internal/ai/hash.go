package ai

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

const defaultHashDimension = 384

// hashEmbedProvider produces deterministic bag-of-words vectors with the
// hashing trick. It needs no network access or model files, which makes it
// the embedding backend for tests and offline installs.
type hashEmbedProvider struct{}

func (p *hashEmbedProvider) Name() string {
	return "hash"
}

func (p *hashEmbedProvider) Embed(ctx context.Context, _ string, texts []string, opts EmbedOptions) ([][]float32, error) {
	dim := opts.Dimension
	if dim <= 0 {
		dim = defaultHashDimension
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, hashVector(text, dim))
	}
	return out, nil
}

func hashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(dim))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return vec
}

func createHashEmbedFactory(_ interface{}) (IEmbedProvider, error) {
	return &hashEmbedProvider{}, nil
}

func init() {
	RegisterEmbed("hash", createHashEmbedFactory)
}
