// Package srt receives MPEG-TS over SRT (Secure Reliable Transport), either
// as a listener accepting publishers (Server) or by dialing a remote
// listener (Caller), and feeds each connection into an ingest.Registry.
package srt
