package discovery

import (
	"deckd/internal/domain"
)

// Candidate is an unconfirmed host awaiting reachability verification.
type Candidate struct {
	Host     string
	Name     string
	Source   domain.ServerSource
	PortHint int
}

// merge folds an incoming candidate into the by-host index. The
// higher-priority source wins the record; missing name and port-hint
// fields backfill from the loser.
func merge(index map[string]Candidate, incoming Candidate) Candidate {
	existing, ok := index[incoming.Host]
	if !ok {
		index[incoming.Host] = incoming
		return incoming
	}
	winner, loser := existing, incoming
	if domain.SourcePriority(incoming.Source) < domain.SourcePriority(existing.Source) {
		winner, loser = incoming, existing
	}
	if winner.Name == "" {
		winner.Name = loser.Name
	}
	if winner.PortHint == 0 {
		winner.PortHint = loser.PortHint
	}
	index[incoming.Host] = winner
	return winner
}
