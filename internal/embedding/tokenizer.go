package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token ids shared by the uncased vocabularies most sentence encoders ship with.
const (
	tokenPAD = 0
	tokenUNK = 100
	tokenCLS = 101
	tokenSEP = 102
	// firstWordID skips the reserved and unused slots at the start of the vocabulary.
	firstWordID = 1000
)

// Tokenizer produces model inputs for BERT-style encoders.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer splits text the way BERT's basic tokenizer does (lowercase, punctuation as
// separate tokens) and maps each token into the vocabulary by hash. It needs no vocab file,
// so embeddings are only meaningful for models trained or fine-tuned with the same hashing.
type HashTokenizer struct {
	VocabSize int
}

// Tokenize returns [CLS] tokens... [SEP] padded to maxTokens. Tokens past the limit are dropped.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 2
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0], attentionMask[0] = tokenCLS, 1
	pos := 1
	for _, tok := range BasicTokens(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos], attentionMask[pos] = t.id(tok), 1
		pos++
	}
	inputIDs[pos], attentionMask[pos] = tokenSEP, 1
	// The rest stays tokenPAD with a zero mask.
	return inputIDs, attentionMask, tokenTypeIDs
}

func (t *HashTokenizer) id(tok string) int64 {
	vocab := t.VocabSize
	if vocab <= firstWordID {
		vocab = 30522
	}
	if tok == "" {
		return tokenUNK
	}
	return int64(firstWordID + HashString(tok)%(vocab-firstWordID))
}

// BasicTokens lowercases text, strips accents' combining marks, and splits on whitespace
// and punctuation. Each punctuation rune is its own token.
func BasicTokens(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.Is(unicode.Mn, r):
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// HashString returns a deterministic non-negative FNV-1a hash of s.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32())
}
