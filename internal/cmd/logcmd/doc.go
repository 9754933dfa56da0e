// Package logcmd contains the Cobra commands of the flolog CLI: reading and
// verifying record log files, moving records between files and the Pebble
// event log, and archiving stdin through an in-process queue.
package logcmd
