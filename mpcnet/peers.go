package mpcnet

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParsePeers reads an ordered peer list, one "host:port" endpoint per
// line; a party's position in the list is its id. Blank lines and lines
// starting with '#' are skipped. Exactly n endpoints must be listed.
func ParsePeers(r io.Reader, n int) ([]string, error) {
	peers := make([]string, 0, n)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		host, port, ok := strings.Cut(line, ":")
		if !ok || host == "" || port == "" {
			return nil, fmt.Errorf("%w: peer list line %d: expected \"host:port\", got %q", ErrConfigMismatch, lineNo, line)
		}
		if len(peers) == n {
			return nil, fmt.Errorf("%w: peer list line %d: more than %d endpoints", ErrConfigMismatch, lineNo, n)
		}
		peers = append(peers, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(peers) != n {
		return nil, fmt.Errorf("%w: peer list has %d endpoints, expected %d", ErrConfigMismatch, len(peers), n)
	}
	return peers, nil
}
