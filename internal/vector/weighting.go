package vector

import "math"

// DocumentIDF is the inverse document frequency of any token in a one-document
// corpus that contains it: 1 + ln(1/2).
var DocumentIDF = IDF(1, 1)

// IDF returns the smoothed inverse document frequency 1 + ln(n / (1 + df))
// for a token found in df of n documents. It stays positive for 0 <= df <= n.
func IDF(df, n int) float64 {
	if n <= 0 {
		return 1
	}
	return 1 + math.Log(float64(n)/float64(1+df))
}

// Counts recovers raw term counts from a vector produced by Vectorize.
func (v SparseVector) Counts() map[string]float64 {
	out := make(map[string]float64, len(v))
	for term, w := range v {
		out[term] = math.Round(w / DocumentIDF)
	}
	return out
}

// Corpus holds document frequencies over a set of vectors so they can be
// re-weighted against each other instead of against themselves.
type Corpus struct {
	n  int
	df map[string]int
}

// NewCorpus counts, for every token, how many of the given vectors contain it.
func NewCorpus(vectors []SparseVector) *Corpus {
	df := make(map[string]int)
	for _, v := range vectors {
		for term, w := range v {
			if w > 0 {
				df[term]++
			}
		}
	}
	return &Corpus{n: len(vectors), df: df}
}

// Size returns the number of documents in the corpus.
func (c *Corpus) Size() int { return c.n }

// IDF returns the inverse document frequency of term within the corpus.
func (c *Corpus) IDF(term string) float64 {
	return IDF(c.df[term], c.n)
}

// Reweight returns a new vector whose weights are count * corpus IDF.
// v must come from Vectorize.
func (c *Corpus) Reweight(v SparseVector) SparseVector {
	out := make(SparseVector, len(v))
	for term, n := range v.Counts() {
		out[term] = n * c.IDF(term)
	}
	return out
}
