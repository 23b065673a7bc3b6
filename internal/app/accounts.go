package app

import (
	"deckd/internal/domain"
)

// ReadAccount refreshes one server's account state from the server.
func (c *Coordinator) ReadAccount(serverID string) (domain.AccountState, error) {
	return submit(c, func() (domain.AccountState, error) {
		return c.readAccountLocked(serverID)
	})
}

func (c *Coordinator) readAccountLocked(serverID string) (domain.AccountState, error) {
	entry, err := c.entryFor(serverID)
	if err != nil {
		return domain.AccountState{}, err
	}
	var result domain.AccountReadResult
	if err := c.call(entry.client, domain.MethodAccountRead, nil, &result); err != nil {
		c.state.Commit(func(state *domain.AppState) {
			account := state.Accounts[serverID]
			account.LastError = err.Error()
			state.Accounts[serverID] = account
		})
		return domain.AccountState{}, err
	}
	account := domain.AccountState{
		AuthStatus: result.AuthStatus,
		Email:      result.Email,
	}
	c.state.Commit(func(state *domain.AppState) {
		state.Accounts[serverID] = account
	})
	return account, nil
}

// StartLogin begins an OAuth login and records the pending URL and id.
func (c *Coordinator) StartLogin(serverID string) (domain.AccountState, error) {
	return submit(c, func() (domain.AccountState, error) {
		entry, err := c.entryFor(serverID)
		if err != nil {
			return domain.AccountState{}, err
		}
		var result domain.LoginStartResult
		if err := c.call(entry.client, domain.MethodLoginStart, nil, &result); err != nil {
			return domain.AccountState{}, err
		}
		account := domain.AccountState{
			AuthStatus:      domain.AuthNotLoggedIn,
			PendingLoginURL: result.AuthURL,
			PendingLoginID:  result.LoginID,
		}
		c.state.Commit(func(state *domain.AppState) {
			state.Accounts[serverID] = account
		})
		return account, nil
	})
}

// CancelLogin abandons a pending login.
func (c *Coordinator) CancelLogin(serverID string) error {
	_, err := submit(c, func() (struct{}, error) {
		entry, err := c.entryFor(serverID)
		if err != nil {
			return struct{}{}, err
		}
		if err := c.call(entry.client, domain.MethodLoginCancel, nil, nil); err != nil {
			return struct{}{}, err
		}
		c.state.Commit(func(state *domain.AppState) {
			account := state.Accounts[serverID]
			account.PendingLoginURL = ""
			account.PendingLoginID = ""
			state.Accounts[serverID] = account
		})
		return struct{}{}, nil
	})
	return err
}

// Logout signs the server's account out and re-reads its state.
func (c *Coordinator) Logout(serverID string) error {
	_, err := submit(c, func() (struct{}, error) {
		entry, err := c.entryFor(serverID)
		if err != nil {
			return struct{}{}, err
		}
		if err := c.call(entry.client, domain.MethodLogout, nil, nil); err != nil {
			return struct{}{}, err
		}
		_, err = c.readAccountLocked(serverID)
		return struct{}{}, err
	})
	return err
}
