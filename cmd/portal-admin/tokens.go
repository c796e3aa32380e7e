package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	redisadapter "github.com/swachh/portal-core/internal/adapters/redis"
	domainauth "github.com/swachh/portal-core/internal/domain/auth"
)

type listTokensOptions struct {
	Limit   int
	RawJSON bool
}

type revokeOptions struct {
	ClientID    string
	DryRun      bool
	Yes         bool
	NoBroadcast bool
}

func parseListTokensFlags(args []string) (listTokensOptions, error) {
	fs := flag.NewFlagSet("list-tokens", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listTokensOptions
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of handles to print")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print handles as JSON")

	if err := fs.Parse(args); err != nil {
		return listTokensOptions{}, err
	}
	if opts.Limit <= 0 {
		return listTokensOptions{}, errors.New("--limit must be greater than zero")
	}
	return opts, nil
}

func parseRevokeFlags(args []string) (revokeOptions, error) {
	fs := flag.NewFlagSet("revoke-token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts revokeOptions
	fs.StringVar(&opts.ClientID, "client-id", "", "Portal client id (the portal_client cookie value, required)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")
	fs.BoolVar(&opts.NoBroadcast, "no-broadcast", false, "Do not publish a signed_out event to live processes")

	if err := fs.Parse(args); err != nil {
		return revokeOptions{}, err
	}
	opts.ClientID = strings.TrimSpace(opts.ClientID)
	if opts.ClientID == "" {
		return revokeOptions{}, errors.New("--client-id is required")
	}
	return opts, nil
}

func tokenStoreOptions(cmdCtx *commandContext) redisadapter.TokenStoreOptions {
	return redisadapter.TokenStoreOptions{
		Prefix:      cmdCtx.Config.Session.TokenPrefix,
		FallbackTTL: cmdCtx.Config.Session.TokenTTL,
	}
}

func runListTokens(cmdCtx *commandContext, args []string) error {
	opts, err := parseListTokensFlags(args)
	if err != nil {
		return err
	}
	client, err := connectRedis(cmdCtx.Logger, &cmdCtx.Config.Redis)
	if err != nil {
		return err
	}
	defer closeRedis(cmdCtx.Logger, client)

	store := redisadapter.NewTokenStore(client, tokenStoreOptions(cmdCtx))
	handles, err := store.List(cmdCtx.Ctx, opts.Limit)
	if err != nil {
		return fmt.Errorf("list token handles: %w", err)
	}
	if opts.RawJSON {
		return printHandlesJSON(cmdCtx.Stdout, handles)
	}
	return printHandles(cmdCtx.Stdout, handles)
}

type handleView struct {
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	TTL       string    `json:"ttl"`
}

func viewOf(h redisadapter.StoredHandle) handleView {
	v := handleView{
		ClientID:  h.ClientID,
		ExpiresAt: h.Session.ExpiresAt,
		TTL:       h.TTL.Round(time.Second).String(),
	}
	if id := h.Session.Identity; id != nil {
		v.UserID = id.UserID
		v.Email = id.Email
		v.Role = string(id.Role)
	}
	return v
}

func printHandlesJSON(w io.Writer, handles []redisadapter.StoredHandle) error {
	views := make([]handleView, 0, len(handles))
	for _, h := range handles {
		views = append(views, viewOf(h))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

func printHandles(w io.Writer, handles []redisadapter.StoredHandle) error {
	if len(handles) == 0 {
		return writeln(w, "No token handles found.")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "Client\tUser\tRole\tExpires\tTTL"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, h := range handles {
		v := viewOf(h)
		expires := "-"
		if !v.ExpiresAt.IsZero() {
			expires = v.ExpiresAt.UTC().Format(time.RFC3339)
		}
		user := v.Email
		if user == "" {
			user = "-"
		}
		role := v.Role
		if role == "" {
			role = "-"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n", v.ClientID, user, role, expires, v.TTL); err != nil {
			return fmt.Errorf("write handle %q: %w", v.ClientID, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush handles: %w", err)
	}
	return writef(w, "\n%d handle(s)\n", len(handles))
}

func runRevokeToken(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeFlags(args)
	if err != nil {
		return err
	}

	if opts.DryRun {
		return writef(cmdCtx.Stdout, "[dry-run] would delete token handle for client %s (broadcast: %t)\n",
			opts.ClientID, !opts.NoBroadcast)
	}
	if !opts.Yes {
		if confirmErr := confirm(cmdCtx.Stdin, cmdCtx.Stdout,
			fmt.Sprintf("Revoke the token handle for client %s?", opts.ClientID)); confirmErr != nil {
			return confirmErr
		}
	}

	client, err := connectRedis(cmdCtx.Logger, &cmdCtx.Config.Redis)
	if err != nil {
		return err
	}
	defer closeRedis(cmdCtx.Logger, client)

	store := redisadapter.NewTokenStore(client, tokenStoreOptions(cmdCtx))
	if err := store.Delete(cmdCtx.Ctx, opts.ClientID); err != nil {
		return fmt.Errorf("delete token handle: %w", err)
	}
	cmdCtx.Logger.Info("token handle deleted", "client_id", opts.ClientID)

	if opts.NoBroadcast {
		return nil
	}
	bus := redisadapter.NewSessionEventBus(client, redisadapter.SessionEventBusOptions{
		Channel: cmdCtx.Config.Session.EventChannel,
		Origin:  "portal-admin",
		Logger:  cmdCtx.Logger,
	})
	ev := domainauth.SessionEvent{Kind: domainauth.EventSignedOut}
	if err := bus.Publish(cmdCtx.Ctx, opts.ClientID, ev); err != nil {
		return fmt.Errorf("broadcast sign-out: %w", err)
	}
	return writef(cmdCtx.Stdout, "Revoked client %s.\n", opts.ClientID)
}

func confirm(in io.Reader, out io.Writer, question string) error {
	if err := write(out, question+" [y/N]: "); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(resp)) {
	case "y", "yes":
		return nil
	default:
		return errors.New("aborted by user")
	}
}
