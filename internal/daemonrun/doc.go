// Package daemonrun assembles the pipeline from configuration and hosts it,
// either as the long-running daemon or as a one-shot local run.
package daemonrun
