// Package detector turns a freshly fetched page into a single prioritized
// change verdict.
//
// Detection is split into three independent signals: application forms found
// in the raw HTML, critical or important keywords found in the visible text of
// the normalized content, and edit-distance similarity against the previous
// snapshot. The Classifier combines them in a fixed cascade so that a form or
// keyword signal is never masked by a low similarity score:
//
//	no baseline -> form -> keyword -> similarity -> no change
//
// Every detector works on untrusted markup and treats anything it cannot
// recognise as "no match"; none of them return errors.
package detector
