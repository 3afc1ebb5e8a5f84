// Package conversation runs a single simulation: it constructs a fresh agent
// for the run, alternates persona and agent turns up to the turn limit and
// returns the frozen transcript.
//
// The driver moves through the states initializing, turn_loop, terminating
// and done. Every failure raised by a collaborator (error or panic) is caught
// at the driver boundary and recorded on the transcript with terminal reason
// "error"; Run itself never fails.
package conversation
