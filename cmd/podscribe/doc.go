// Command podscribe runs the podcast transcription pipeline and inspects
// its results.
package main
