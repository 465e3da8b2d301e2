package main

import (
	"log"
	"net"
)

// blockHost bans a client host, persists the ban and drops every
// connection it currently holds.
func (s *server) blockHost(host, reason string) {
	if err := s.bans.Ban(host); err != nil {
		log.Printf("couldn't persist ban for %s: %v\n", host, err)
	}
	log.Printf("Blocked host %s: %s\n", host, reason)

	s.mu.Lock()
	var conns []*connection
	for addr, c := range s.connectionList {
		if h, _, err := net.SplitHostPort(addr); err == nil && h == host {
			conns = append(conns, c)
		}
	}
	s.mu.Unlock()

	for _, c := range conns {
		s.closeConnection(c)
	}
}
