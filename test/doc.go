// Package test holds end-to-end tests and benchmarks that run real
// servers and clients over loopback TCP.
package test
