package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/erauner12/oauthctl/internal/config"
	"github.com/erauner12/oauthctl/internal/grant"
	"github.com/erauner12/oauthctl/internal/jwks"
	"github.com/erauner12/oauthctl/internal/jwtverify"
	"github.com/erauner12/oauthctl/internal/oauthstate"
	"github.com/erauner12/oauthctl/internal/provider"
	"github.com/erauner12/oauthctl/internal/tokenstore"
)

func loadCatalog() (*config.Catalog, error) {
	return config.Load(*configPath)
}

func openStore() (*tokenstore.Store, error) {
	return tokenstore.Open(*storeDir)
}

func saveToken(store *tokenstore.Store, providerID string, tr *grant.TokenResponse) error {
	return store.Put(providerID, tokenstore.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		ExpiresIn:    tr.ExpiresIn,
		RefreshToken: tr.RefreshToken,
		Scope:        tr.Scope,
		IDToken:      tr.IDToken,
	})
}

// cmdAuth runs the interactive Authorization Code + PKCE flow.
func cmdAuth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	redirectURI := fs.String("redirect-uri", "http://127.0.0.1:0/callback", "loopback redirect URI")
	scopes := fs.String("scopes", "", "space-separated scopes")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return usageError{fmt.Errorf("usage: oauthctl auth <provider>")}
	}
	providerID := fs.Arg(0)

	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	p, err := cat.Provider(providerID)
	if err != nil {
		return err
	}
	if warnings, err := p.Validate(); err != nil {
		return err
	} else {
		for _, w := range warnings {
			log.Warn().Str("provider", p.ID).Msg(w)
		}
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	e := grant.NewEngine()
	g := grant.AuthorizationCode{
		RedirectURI: *redirectURI,
		Scopes:      splitScopes(*scopes),
		States:      oauthstate.New(0, 0),
		OpenBrowser: func(authURL string) {
			fmt.Fprintf(os.Stderr, "Open this URL in your browser to authorize:\n\n  %s\n\n", authURL)
		},
	}

	tr, err := e.Run(ctx, p, g)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}
	if err := saveToken(store, p.ID, tr); err != nil {
		return err
	}
	fmt.Printf("authorized %s: access token stored\n", p.ID)
	return nil
}

// cmdToken runs a non-interactive grant.
func cmdToken(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	providerID := fs.String("provider", "", "provider id (defaults to the catalog's default_provider)")
	scopes := fs.String("scopes", "", "space-separated scopes")
	audience := fs.String("audience", "", "audience parameter")
	username := fs.String("username", "", "resource owner username (password grant)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return usageError{fmt.Errorf("usage: oauthctl token <client_credentials|password|device_code>")}
	}
	grantName := fs.Arg(0)

	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	p, err := cat.Provider(*providerID)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	e := grant.NewEngine()
	var g grant.Grant

	switch grantName {
	case "client_credentials":
		g = grant.ClientCredentials{Scopes: splitScopes(*scopes), Audience: *audience}
	case "password":
		pw, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		g = grant.Password{Username: *username, Password: pw, Scopes: splitScopes(*scopes)}
	case "device_code":
		g = grant.DeviceAuthorization{
			Scopes:   splitScopes(*scopes),
			Audience: *audience,
			Prompt: func(verificationURI, verificationURIComplete, userCode string) {
				fmt.Fprintf(os.Stderr, "Visit %s and enter code %s\n", verificationURI, userCode)
			},
		}
	default:
		return usageError{fmt.Errorf("unknown grant type %q", grantName)}
	}

	tr, err := e.Run(ctx, p, g)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	if err := saveToken(store, p.ID, tr); err != nil {
		return err
	}
	fmt.Printf("acquired token for %s via %s\n", p.ID, grantName)
	return nil
}

// cmdRefresh refreshes a stored token, or an explicitly given refresh token.
func cmdRefresh(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	providerID := fs.String("provider", "", "provider id")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return usageError{fmt.Errorf("usage: oauthctl refresh <provider> | oauthctl refresh -provider <id> <refresh-token>")}
	}
	id := fs.Arg(0)
	var refreshToken string
	if *providerID != "" {
		// With -provider, the positional argument is the refresh token itself.
		id, refreshToken = *providerID, fs.Arg(0)
	}

	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	p, err := cat.Provider(id)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	if refreshToken == "" {
		stored, err := store.Get(p.ID)
		if err != nil {
			return err
		}
		if stored == nil || stored.RefreshToken == "" {
			return fmt.Errorf("no stored refresh token for provider %q", p.ID)
		}
		refreshToken = stored.RefreshToken
	}

	e := grant.NewEngine()
	tr, err := e.Run(ctx, p, grant.RefreshToken{RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	if err := saveToken(store, p.ID, tr); err != nil {
		return err
	}
	fmt.Printf("refreshed token for %s\n", p.ID)
	return nil
}

// cmdInspect decodes and verifies a token's claims.
func cmdInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	providerID := fs.String("provider", "", "provider id, used to resolve jwks_url/issuer")
	fs.Parse(args)

	var token string
	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	var p *provider.Record
	if *providerID != "" {
		p, err = cat.Provider(*providerID)
		if err != nil {
			return err
		}
	}

	if fs.NArg() >= 1 {
		token = fs.Arg(0)
	} else if p != nil {
		store, err := openStore()
		if err != nil {
			return err
		}
		stored, err := store.Get(p.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("no stored token for provider %q", p.ID)
		}
		token = stored.AccessToken
	} else {
		return usageError{fmt.Errorf("usage: oauthctl inspect [-provider id] [token]")}
	}

	opts := jwtverify.Options{}
	var resolver *jwks.Resolver
	if p != nil {
		opts.JWKSURI = p.JWKSURL
		resolver = jwks.New(0)
	}

	res := jwtverify.Verify(ctx, resolver, token, opts)
	if res.Opaque {
		fmt.Println("token is opaque (not a JWT); use an introspection endpoint to inspect it")
		return nil
	}

	fmt.Printf("valid: %v\n", res.Valid)
	for k, v := range res.Claims {
		fmt.Printf("  %s: %v\n", k, v)
	}
	for _, e := range res.Errors {
		fmt.Printf("  error: %v\n", e)
	}
	return nil
}

// cmdRevoke revokes a token at its provider.
func cmdRevoke(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	providerID := fs.String("provider", "", "provider id")
	tokenTypeHint := fs.String("type-hint", "access_token", "token_type_hint")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return usageError{fmt.Errorf("usage: oauthctl revoke <token>")}
	}
	token := fs.Arg(0)

	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	p, err := cat.Provider(*providerID)
	if err != nil {
		return err
	}

	e := grant.NewEngine()
	if err := e.Revoke(ctx, p, token, *tokenTypeHint); err != nil {
		return fmt.Errorf("revocation failed: %w", err)
	}
	fmt.Println("revoked")
	return nil
}

// cmdTokens manages the local encrypted token store.
func cmdTokens(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usageError{fmt.Errorf("usage: oauthctl tokens list|clear|remove <provider>")}
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		ids, err := store.ListProviders()
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	case "clear":
		return store.ClearAll()
	case "remove":
		if len(args) < 2 {
			return usageError{fmt.Errorf("usage: oauthctl tokens remove <provider>")}
		}
		return store.Delete(args[1])
	default:
		return usageError{fmt.Errorf("unknown tokens subcommand %q", args[0])}
	}
}

func splitScopes(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}
