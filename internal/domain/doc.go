// Package domain defines the core data model for taxonomy classification:
// taxonomies, class nodes, items, ensemble vote results, pending
// further-classification cases, and the durable checkpoint that carries a
// session across suspend/resume boundaries.
//
// The package is deliberately dependency-free. All types are plain values
// that serialize cleanly to JSON; mutation of shared collections happens
// only through the pure reducers in internal/reduce.
package domain
