// Package storage persists the wallet document the bridge reads and writes:
// accounts, per-host connection states, network overrides and transaction history.
package storage

import (
	"maps"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/network"
)

// CurrentVersion is the document schema version written by Save.
const CurrentVersion = 1

// maxTransactionsPerAccount bounds the history kept per account.
const maxTransactionsPerAccount = 100

// FeePreset is the fee level chosen for a transaction.
type FeePreset string

// Fee presets.
const (
	FeeSlow   FeePreset = "slow"
	FeeNormal FeePreset = "normal"
	FeeFast   FeePreset = "fast"
)

// Valid reports whether p is a known preset.
func (p FeePreset) Valid() bool {
	switch p {
	case FeeSlow, FeeNormal, FeeFast:
		return true
	default:
		return false
	}
}

// Account is a wallet account the user can connect pages to.
type Account struct {
	Address common.Address `json:"address"`
	Label   string         `json:"label,omitempty"`
}

// TransactionRequest records a transaction submitted on behalf of a page.
type TransactionRequest struct {
	ID            string          `json:"id"`
	Hash          common.Hash     `json:"hash"`
	Hostname      string          `json:"hostname"`
	NetworkHexID  network.HexID   `json:"networkHexId"`
	From          common.Address  `json:"from"`
	To            *common.Address `json:"to,omitempty"`
	Value         string          `json:"value,omitempty"`
	FeePreset     FeePreset       `json:"feePreset,omitempty"`
	SubmittedAtMs int64           `json:"submittedAtMs"`
}

// Document is the persisted root aggregate.
type Document struct {
	Version             int                                     `json:"version"`
	Accounts            map[common.Address]Account              `json:"accounts"`
	SelectedAddress     *common.Address                         `json:"selectedAddress,omitempty"`
	DApps               map[string]connection.State             `json:"dApps"`
	NetworkRPCMap       network.RPCMap                          `json:"networkRPCMap"`
	CustomNetworkMap    map[network.HexID]network.Network       `json:"customNetworkMap"`
	TransactionRequests map[common.Address][]TransactionRequest `json:"transactionRequests"`
	FeePresetMap        map[network.HexID]FeePreset             `json:"feePresetMap"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	d := &Document{Version: CurrentVersion}
	d.normalize()
	return d
}

func (d *Document) normalize() {
	if d.Version == 0 {
		d.Version = CurrentVersion
	}
	if d.Accounts == nil {
		d.Accounts = map[common.Address]Account{}
	}
	if d.DApps == nil {
		d.DApps = map[string]connection.State{}
	}
	// The map key names the dApp; a record's own hostname may be absent.
	for host, s := range d.DApps {
		if s.DApp.Hostname != host {
			s.DApp.Hostname = host
			d.DApps[host] = s
		}
	}
	if d.NetworkRPCMap == nil {
		d.NetworkRPCMap = network.RPCMap{}
	}
	if d.CustomNetworkMap == nil {
		d.CustomNetworkMap = map[network.HexID]network.Network{}
	}
	if d.TransactionRequests == nil {
		d.TransactionRequests = map[common.Address][]TransactionRequest{}
	}
	if d.FeePresetMap == nil {
		d.FeePresetMap = map[network.HexID]FeePreset{}
	}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := &Document{
		Version:          d.Version,
		Accounts:         maps.Clone(d.Accounts),
		DApps:            maps.Clone(d.DApps),
		NetworkRPCMap:    maps.Clone(d.NetworkRPCMap),
		CustomNetworkMap: maps.Clone(d.CustomNetworkMap),
		FeePresetMap:     maps.Clone(d.FeePresetMap),
	}
	if d.SelectedAddress != nil {
		addr := *d.SelectedAddress
		c.SelectedAddress = &addr
	}
	if d.TransactionRequests != nil {
		c.TransactionRequests = make(map[common.Address][]TransactionRequest, len(d.TransactionRequests))
		for k, v := range d.TransactionRequests {
			c.TransactionRequests[k] = slices.Clone(v)
		}
	}
	c.normalize()
	return c
}

// HasAccount reports whether addr is a wallet account.
func (d *Document) HasAccount(addr common.Address) bool {
	_, ok := d.Accounts[addr]
	return ok
}

// AddAccount adds or relabels an account. The first account becomes selected.
func (d *Document) AddAccount(addr common.Address, label string) {
	d.Accounts[addr] = Account{Address: addr, Label: strings.TrimSpace(label)}
	if d.SelectedAddress == nil {
		d.SelectedAddress = &addr
	}
}

// SelectedAccount returns the selected account address, if one is set and still present.
func (d *Document) SelectedAccount() (common.Address, bool) {
	if d.SelectedAddress == nil || !d.HasAccount(*d.SelectedAddress) {
		return common.Address{}, false
	}
	return *d.SelectedAddress, true
}

// SortedAccounts returns accounts ordered by address.
func (d *Document) SortedAccounts() []Account {
	out := slices.Collect(maps.Values(d.Accounts))
	slices.SortFunc(out, func(a, b Account) int { return a.Address.Cmp(b.Address) })
	return out
}

// ConnectionState returns the state recorded for hostname.
func (d *Document) ConnectionState(hostname string) connection.State {
	return connection.Calculate(hostname, d.DApps)
}

// SetConnectionState records s under its hostname. not_interacted removes the record.
func (d *Document) SetConnectionState(s connection.State) {
	if s.Kind == connection.NotInteracted {
		delete(d.DApps, s.DApp.Hostname)
		return
	}
	d.DApps[s.DApp.Hostname] = s
}

// Hostnames returns the recorded hostnames in sorted order.
func (d *Document) Hostnames() []string {
	return slices.Sorted(maps.Keys(d.DApps))
}

// Networks builds the network map including custom networks.
func (d *Document) Networks() network.Map {
	return network.NewMap(d.CustomNetworkMap)
}

// RecordTransaction appends tx to the sender's history, keeping the newest entries.
func (d *Document) RecordTransaction(tx TransactionRequest) {
	list := append(d.TransactionRequests[tx.From], tx)
	if len(list) > maxTransactionsPerAccount {
		list = list[len(list)-maxTransactionsPerAccount:]
	}
	d.TransactionRequests[tx.From] = list
}
