// Package ytdlp wraps the yt-dlp command line tool to list and download
// caption tracks and to fetch remote source videos.
//
// Commands run through an injectable runner so tests can script yt-dlp
// responses without the binary installed.
package ytdlp
