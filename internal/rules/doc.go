// Package rules holds the clause playbook: clause types, per-perspective
// rule hierarchies, and the matcher that walks them.
//
// Rules are flat rows linked by parent IDs. BuildHierarchy assembles them
// into a validated tree per (clause type, perspective) pair, and Matcher
// caches those trees and scores candidate text against every node with a
// weighted blend of keyword overlap, ML-adjusted confidence, historical
// rule performance and the rule's static prior. The ConfidenceAdjuster
// interface keeps the ML model behind an abstraction so the matcher works
// identically with or without one.
package rules
