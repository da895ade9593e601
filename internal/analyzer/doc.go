// Package analyzer orchestrates clause analysis over whole documents. For
// each clause type it runs a fallback chain: hierarchical rule traversal,
// then semantic exemplar search, then pure keyword matching. Stages
// degrade rather than abort, so a failing collaborator costs accuracy but
// never the analysis. Outcomes carry risk levels and, for missing or
// unacceptable clauses, drafted replacement language.
package analyzer
