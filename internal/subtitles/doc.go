// Package subtitles defines the timed segment model shared by every
// pipeline stage and the SRT and timed-text codecs used for artifacts.
package subtitles
