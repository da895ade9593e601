// Package features implements the lightweight confidence model: a
// deterministic feature extractor over clause text, a versioned weight
// vector swapped atomically by the learning pass, and the Adjuster that
// blends base confidence with feature evidence, historical performance and
// obligation sentiment. The model is linear on purpose; every score can be
// decomposed into named components for explanation.
package features
