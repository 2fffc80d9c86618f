/*
Package workers sizes worker pools from GOMAXPROCS rather than
runtime.NumCPU, so pools respect container CPU limits.

Reconciliation uses ForMixed: each file costs a stat, a database lookup
and possibly a thumbnail decode.

	n := workers.Resolve(cfg.Reconcile.Workers, 16)
	g.SetLimit(n)

Set RECONCILE_WORKERS to pin the computed count.
*/
package workers
