// Package fileutil holds small file helpers shared by the pipeline and daemon.
package fileutil
