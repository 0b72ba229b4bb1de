//go:build !pcap
// +build !pcap

// Command pcap-replay extracts pose frame datagrams from a packet
// capture and resends them over UDP. Decoding captures needs cgo and
// libpcap, so the real implementation sits behind the pcap build tag.
package main

import "log"

func main() {
	log.Fatal("PCAP replay support not compiled in (build with -tags pcap)")
}
