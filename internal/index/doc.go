// Package index provides the offset-keyed record arena for GGPK archives.
//
// The index is built once by a full sequential scan and then kept in step
// with every in-place mutation (file replacement, free-list changes).
package index
