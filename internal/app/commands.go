package app

import (
	"sort"
	"strings"

	"deckd/internal/domain"
)

// ResolveHomeDirectory asks a server for its home directory through the
// remote command-execution capability.
func (c *Coordinator) ResolveHomeDirectory(serverID string) (string, error) {
	return submit(c, func() (string, error) {
		entry, err := c.targetEntry(serverID)
		if err != nil {
			return "", err
		}
		params := domain.ExecCommandParams{Command: []string{"sh", "-c", "cd ~ && pwd"}}
		var result domain.ExecCommandResult
		if err := c.call(entry.client, domain.MethodCommandExec, params, &result); err != nil {
			return "", err
		}
		return strings.TrimSpace(result.Output), nil
	})
}

// ListDirectories lists the directory entries under path on a server,
// excluding "." and "..", sorted lexicographically.
func (c *Coordinator) ListDirectories(serverID, path string) ([]string, error) {
	return submit(c, func() ([]string, error) {
		entry, err := c.targetEntry(serverID)
		if err != nil {
			return nil, err
		}
		params := domain.ExecCommandParams{Command: []string{"ls", "-1ap", "--", path}}
		var result domain.ExecCommandResult
		if err := c.call(entry.client, domain.MethodCommandExec, params, &result); err != nil {
			return nil, err
		}
		return parseDirectoryListing(result.Output), nil
	})
}

// parseDirectoryListing keeps directory entries from `ls -1ap` output:
// they end with a slash; "." and ".." are dropped.
func parseDirectoryListing(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		entry := strings.TrimSpace(line)
		if !strings.HasSuffix(entry, "/") {
			continue
		}
		name := strings.TrimSuffix(entry, "/")
		if name == "" || name == "." || name == ".." {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Coordinator) targetEntry(serverID string) (*clientEntry, error) {
	if serverID != "" {
		return c.entryFor(serverID)
	}
	return c.activeEntry()
}
