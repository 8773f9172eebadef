package cluster

import (
	"context"
	"io"
	"log/slog"
)

// Transport runs commands on one node and fetches files off it. The
// lifecycle core never calls it; concrete service hooks and the log
// collector do.
type Transport interface {
	// Run executes cmd and returns an error when it fails.
	Run(ctx context.Context, cmd string) error
	// Output executes cmd and returns its combined standard output.
	Output(ctx context.Context, cmd string) ([]byte, error)
	// Fetch streams the file at path on the node into w.
	Fetch(ctx context.Context, path string, w io.Writer) error
}

// Account is the credential-and-execution view of a node. Its logger
// slot is deliberately mutable: the owning service binds it on
// allocation and clears it on release, and a slot found bound on a
// fresh allocation means the previous owner leaked the node.
type Account struct {
	Hostname  string
	transport Transport
	logger    *slog.Logger
}

func NewAccount(hostname string, transport Transport) *Account {
	return &Account{Hostname: hostname, transport: transport}
}

// Logger returns the bound logger, nil when the node is unowned.
func (a *Account) Logger() *slog.Logger { return a.logger }

// SetLogger binds or, with nil, clears the logger slot.
func (a *Account) SetLogger(logger *slog.Logger) { a.logger = logger }

func (a *Account) Run(ctx context.Context, cmd string) error {
	return a.transport.Run(ctx, cmd)
}

func (a *Account) Output(ctx context.Context, cmd string) ([]byte, error) {
	return a.transport.Output(ctx, cmd)
}

func (a *Account) Fetch(ctx context.Context, path string, w io.Writer) error {
	return a.transport.Fetch(ctx, path, w)
}

func (a *Account) String() string { return a.Hostname }

// Node is one allocated machine-like resource. The cluster owns it;
// services hold a non-owning reference between Alloc and Free.
type Node struct {
	Account *Account
	OS      OS
}

func NewNode(os OS, account *Account) *Node {
	return &Node{Account: account, OS: os}
}

func (n *Node) String() string { return n.Account.Hostname }
