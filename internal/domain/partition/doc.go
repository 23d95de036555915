// Package partition holds the core of the inventory partitioner: the adaptive
// partition size calculation, the total order used to number inventory records,
// the override index built from the filelist feed and the per-record reconciliation
// that tags every record with its partition.
//
// Everything in this package is pure. Records are immutable values; every
// transformation returns a new record. I/O, sorting at scale and persistence
// live in the infrastructure layer and only call into these functions.
//
// # Pipeline
//
//	inventory ──► Compare / NumberRecords ──► NumberedRecord ─┐
//	                                                          ├─► Reconcile ──► ReconciledRecord
//	filelist  ──► OverrideIndexBuilder ──► OverrideIndex ─────┘
//	                                      ComputePartitionSize ─┘
package partition
