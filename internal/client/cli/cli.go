package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iudanet/linkmesh/internal/client/api"
	"github.com/iudanet/linkmesh/internal/client/iocli"
	pkgapi "github.com/iudanet/linkmesh/pkg/api"
)

// ErrUnknownCommand неизвестная команда
var ErrUnknownCommand = errors.New("unknown command")

type Cli struct {
	apiClient *api.Client
	io        iocli.IO
}

func New(apiClient *api.Client, out iocli.IO) *Cli {
	return &Cli{
		apiClient: apiClient,
		io:        out,
	}
}

// Run выполняет команду с аргументами
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "add":
		return c.runAdd(ctx, args)
	case "list":
		return c.runList(ctx, args)
	case "resolve":
		return c.runResolve(ctx, args)
	case "status":
		return c.runStatus(ctx)
	case "peers":
		return c.runPeers(ctx)
	case "collisions":
		return c.runCollisions(ctx)
	case "sync":
		return c.runSync(ctx, args)
	default:
		PrintUsage(c.io)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// runAdd: add <url> [description...]; без аргументов адрес спрашивается интерактивно
func (c *Cli) runAdd(ctx context.Context, args []string) error {
	var req pkgapi.CreateRedirectRequest

	if len(args) > 0 {
		req.DestinationURL = args[0]
		req.Description = strings.Join(args[1:], " ")
	} else {
		dest, err := c.io.ReadInput("Destination URL: ")
		if err != nil {
			return fmt.Errorf("failed to read destination: %w", err)
		}
		desc, err := c.io.ReadInput("Description (optional): ")
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read description: %w", err)
		}
		req.DestinationURL = dest
		req.Description = desc
	}

	rec, err := c.apiClient.CreateRedirect(ctx, req)
	if err != nil {
		return err
	}

	c.io.Println("✓ Redirect created")
	c.io.Printf("Short code:  %s\n", rec.ShortCode)
	c.io.Printf("ID:          %s\n", rec.ID)
	c.io.Printf("Destination: %s\n", rec.DestinationURL)
	return nil
}

func (c *Cli) runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(c.io)
	page := fs.Int("page", 1, "Page number")
	pageSize := fs.Int("size", 0, "Page size (server default when 0)")
	search := fs.String("search", "", "Case-insensitive substring of description")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := c.apiClient.ListRedirects(ctx, *page, *pageSize, *search)
	if err != nil {
		return err
	}

	if len(resp.Records) == 0 {
		c.io.Println("No redirects found.")
		return nil
	}

	c.io.Printf("=== Redirects (page %d, %d of %d) ===\n", resp.Page, len(resp.Records), resp.Total)
	c.io.Println()
	for i, rec := range resp.Records {
		c.io.Printf("%d. %s -> %s\n", (resp.Page-1)*resp.PageSize+i+1, rec.ShortCode, rec.DestinationURL)
		if rec.Description != "" {
			c.io.Printf("   %s\n", rec.Description)
		}
	}
	return nil
}

func (c *Cli) runResolve(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: linkctl resolve <code>")
	}

	dest, err := c.apiClient.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	c.io.Println(dest)
	return nil
}

func (c *Cli) runStatus(ctx context.Context) error {
	h, err := c.apiClient.Health(ctx)
	if err != nil {
		return err
	}

	c.io.Println("=== Node Status ===")
	c.io.Println()
	c.io.Printf("Status:     %s\n", h.Status)
	c.io.Printf("Node ID:    %s\n", h.NodeID)
	if h.Version != "" {
		c.io.Printf("Version:    %s\n", h.Version)
	}
	c.io.Printf("Records:    %d\n", h.Records)
	c.io.Printf("Collisions: %d\n", h.Collisions)
	c.io.Printf("Conflicts:  %d\n", h.Conflicts)
	c.io.Printf("Code space: %d hex chars, next collision chance %.2e\n", h.CodeLength, h.CollisionProbability)
	if h.FeedDropped > 0 {
		c.io.Printf("Feed drops: %d (cache rebuilt from replica)\n", h.FeedDropped)
	}
	c.io.Printf("Peers:      %d connected / %d known\n", h.ConnectedPeers, h.KnownPeers)
	return nil
}

func (c *Cli) runPeers(ctx context.Context) error {
	st, err := c.apiClient.Peers(ctx)
	if err != nil {
		return err
	}

	if len(st.Peers) == 0 {
		c.io.Println("No peers known.")
		return nil
	}

	for _, p := range st.Peers {
		state := "disconnected"
		if p.Connected {
			state = "connected"
		}
		name := p.Address
		if name == "" {
			name = "(inbound)"
		}
		c.io.Printf("%s  %s", name, state)
		if p.NodeID != "" {
			c.io.Printf("  node=%s", p.NodeID)
		}
		if !p.LastSync.IsZero() {
			c.io.Printf("  last_sync=%s", p.LastSync.Format(time.RFC3339))
		}
		if p.LastError != "" {
			c.io.Printf("  error=%q", p.LastError)
		}
		c.io.Println()
	}
	return nil
}

// runSync: sync <address>
func (c *Cli) runSync(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sync <peer-address>")
	}

	res, err := c.apiClient.SyncPeer(ctx, args[0])
	if err != nil {
		return err
	}

	c.io.Printf("✓ Synced with %s: pulled %d (merged %d, conflicts %d, skipped %d), pushed %d\n",
		args[0], res.Pulled, res.Merged, res.Conflicts, res.Skipped, res.Pushed)
	return nil
}

func (c *Cli) runCollisions(ctx context.Context) error {
	collisions, err := c.apiClient.Collisions(ctx)
	if err != nil {
		return err
	}

	if len(collisions) == 0 {
		c.io.Println("No short code collisions.")
		return nil
	}

	for _, col := range collisions {
		c.io.Printf("%s  winner=%s  loser=%s  at=%s\n",
			col.ShortCode, col.WinnerID, col.LoserID, col.DetectedAt.Format(time.RFC3339))
	}
	return nil
}

func PrintUsage(out iocli.IO) {
	out.Println("linkmesh control client")
	out.Println()
	out.Println("Usage:")
	out.Println("  linkctl [OPTIONS] COMMAND")
	out.Println()
	out.Println("Options:")
	out.Println("  --version      Show version information")
	out.Println("  --node URL     Peer URL (default: http://localhost:8080)")
	out.Println()
	out.Println("Commands:")
	out.Println("  add [url] [description]                  Create redirect (prompts when url is omitted)")
	out.Println("  list [-page N] [-size N] [-search TEXT]  List redirects")
	out.Println("  resolve <code>                           Print destination for a short code")
	out.Println("  status                                   Show node health")
	out.Println("  peers                                    Show peer connectivity")
	out.Println("  collisions                               Show detected short code collisions")
	out.Println("  sync <peer-address>                      Reconcile with a peer right now")
}
