// Package rttbench measures round-trip latency and throughput between a
// benchmarking client and an echo responder.
//
// Three carriers are supported: TCP and a QUIC stream (ordered, lossless,
// length-prefixed frames) and UDP (one datagram per message, timeout-based
// loss detection). Every payload is obfuscated with a xorshift keystream
// that restarts from the shared initial seed for each message.
package rttbench
