// Package main hosts the phrase2video command line.
//
// Commands map onto the pipeline stages: transcribe writes segments, match
// turns segments and a mapping file into a timeline, render turns a
// timeline into a video, and run does all three. watch rebuilds the
// timeline whenever the mapping file is saved.
package main
