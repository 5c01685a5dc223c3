// Package jobmirror copies job snapshots into Redis so dashboards outside the
// daemon can follow progress.
//
// The Mirror is a jobs.Observer. Snapshots are handed to a single background
// writer through a bounded buffer; when Redis falls behind, updates are
// dropped rather than stalling the pipeline. Each snapshot is stored at
// <prefix>:job:<id> with a TTL and published on <prefix>:jobs.
package jobmirror
