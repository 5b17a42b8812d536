package dupes

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
)

// DefaultPermutations gives Jaccard estimates within roughly 10% error.
const DefaultPermutations = 256

// shingles tokenizes content into the union of word tokens, character
// 3-grams, and adjacent-word bigrams.
func shingles(content string) map[string]bool {
	out := make(map[string]bool)
	lower := strings.ToLower(content)

	words := strings.Fields(lower)
	for _, w := range words {
		out["w:"+w] = true
	}
	for i := 0; i+1 < len(words); i++ {
		out["b:"+words[i]+" "+words[i+1]] = true
	}

	compact := strings.Join(words, " ")
	runes := []rune(compact)
	for i := 0; i+3 <= len(runes); i++ {
		out["g:"+string(runes[i:i+3])] = true
	}
	return out
}

// Signature is a MinHash sketch of a shingle set.
type Signature []uint64

// hashPair produces the two base hashes combined into each permutation:
// perm_i(x) = h1(x) + i*h2(x), the standard double-hashing scheme.
func hashPair(s string) (uint64, uint64) {
	h1 := fnv.New64a()
	h1.Write([]byte(s))
	a := h1.Sum64()

	h2 := fnv.New64()
	h2.Write([]byte(s))
	b := h2.Sum64() | 1 // odd so all permutations differ
	return a, b
}

// minhash computes the signature of a shingle set under perms permutations.
func minhash(set map[string]bool, perms int) Signature {
	sig := make(Signature, perms)
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	for s := range set {
		a, b := hashPair(s)
		for i := 0; i < perms; i++ {
			v := a + uint64(i)*b
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// estimateJaccard is the fraction of agreeing permutation slots.
func estimateJaccard(a, b Signature) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	match := 0
	for i := range a {
		if a[i] == b[i] {
			match++
		}
	}
	return float64(match) / float64(len(a))
}

// lshIndex buckets signatures by band so only near matches are compared.
type lshIndex struct {
	bands   int
	rows    int
	buckets []map[string][]int64
}

// newLSHIndex picks a banding that makes the S-curve inflection land near
// the requested threshold: threshold ~ (1/bands)^(1/rows).
func newLSHIndex(perms int, threshold float64) *lshIndex {
	bands := perms / 4
	for bands > 1 {
		rows := perms / bands
		inflection := math.Pow(1.0/float64(bands), 1.0/float64(rows))
		if inflection >= threshold*0.7 {
			break
		}
		bands /= 2
	}
	if bands < 1 {
		bands = 1
	}
	rows := perms / bands
	buckets := make([]map[string][]int64, bands)
	for i := range buckets {
		buckets[i] = make(map[string][]int64)
	}
	return &lshIndex{bands: bands, rows: rows, buckets: buckets}
}

func (idx *lshIndex) bandKey(sig Signature, band int) string {
	var b strings.Builder
	var buf [8]byte
	start := band * idx.rows
	for i := start; i < start+idx.rows && i < len(sig); i++ {
		binary.LittleEndian.PutUint64(buf[:], sig[i])
		b.Write(buf[:])
	}
	return b.String()
}

// add inserts a signature and returns candidate ids sharing any band.
func (idx *lshIndex) add(id int64, sig Signature) []int64 {
	seen := make(map[int64]bool)
	var candidates []int64
	for band := 0; band < idx.bands; band++ {
		key := idx.bandKey(sig, band)
		for _, other := range idx.buckets[band][key] {
			if !seen[other] {
				seen[other] = true
				candidates = append(candidates, other)
			}
		}
		idx.buckets[band][key] = append(idx.buckets[band][key], id)
	}
	return candidates
}
