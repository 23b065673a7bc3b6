package discovery

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"deckd/internal/domain"
)

// neighborInterfacePrefixes limits the neighbor-table scan to wireless,
// wired, and cellular interfaces.
var neighborInterfacePrefixes = []string{"wlan", "wl", "eth", "en", "rmnet", "ccmni"}

const neighborFlagCompleted = 0x2

// neighborStrategy reads the kernel neighbor table, keeping completed
// entries on recognized interface types.
type neighborStrategy struct {
	path   string
	logger *zap.Logger
}

func (s *neighborStrategy) name() string { return "neighbors" }

func (s *neighborStrategy) discover(ctx context.Context, budget passBudget, emit func(Candidate)) error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open neighbor table: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	first := true
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if first {
			// Header row.
			first = false
			continue
		}
		if candidate, ok := parseNeighborLine(line); ok {
			emit(candidate)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read neighbor table: %w", err)
	}
	return nil
}

// parseNeighborLine parses one /proc/net/arp row:
// "IP address  HW type  Flags  HW address  Mask  Device".
func parseNeighborLine(line string) (Candidate, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Candidate{}, false
	}
	ip := net.ParseIP(fields[0])
	if ip == nil || ip.To4() == nil {
		return Candidate{}, false
	}
	flags, err := strconv.ParseInt(strings.TrimPrefix(fields[2], "0x"), 16, 32)
	if err != nil || flags&neighborFlagCompleted == 0 {
		return Candidate{}, false
	}
	if !recognizedNeighborInterface(fields[5]) {
		return Candidate{}, false
	}
	return Candidate{Host: ip.String(), Source: domain.SourceNeighbor}, true
}

func recognizedNeighborInterface(device string) bool {
	for _, prefix := range neighborInterfacePrefixes {
		if strings.HasPrefix(device, prefix) {
			return true
		}
	}
	return false
}
