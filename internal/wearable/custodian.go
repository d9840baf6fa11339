package wearable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/peakform/wearsync/internal/docstore"
	"github.com/peakform/wearsync/internal/observability"
)

// tokenExpiryWindow guards against handing out a token that expires while a
// request is in flight. The boundary is inclusive: a token expiring exactly
// at now+window counts as expired.
const tokenExpiryWindow = 5 * time.Minute

// RefreshExchange trades a refresh token for a new TokenSet at the vendor
// token endpoint.
type RefreshExchange func(ctx context.Context, refreshToken string) (TokenSet, error)

// TokenCustodian is the single source of truth for one vendor's OAuth
// credentials. Multiple stateless process instances share only the remote
// document store; the in-memory cache is a per-process latency optimization
// and is never coherent across instances.
type TokenCustodian struct {
	slug    string
	store   docstore.Store
	refresh RefreshExchange
	log     zerolog.Logger
	nowFn   func() time.Time

	mu        sync.Mutex
	cached    TokenSet
	hasCached bool
}

type CustodianOptions struct {
	Slug    string
	Store   docstore.Store
	Refresh RefreshExchange
	Logger  zerolog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

func NewTokenCustodian(opts CustodianOptions) *TokenCustodian {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &TokenCustodian{
		slug:    normalizeSlug(opts.Slug),
		store:   opts.Store,
		refresh: opts.Refresh,
		log:     opts.Logger,
		nowFn:   nowFn,
	}
}

func tokenDocumentPath(slug string) string {
	return "tokens/" + slug + ".md"
}

// IsTokenExpired reports whether tokens are unusable now or within the
// safety window. An unset expiry is always expired.
func (c *TokenCustodian) IsTokenExpired(tokens TokenSet) bool {
	if tokens.ExpiresAt.IsZero() {
		return true
	}
	return !tokens.ExpiresAt.After(c.nowFn().Add(tokenExpiryWindow))
}

// GetStoredTokens returns the cached TokenSet when still usable, otherwise
// re-reads the shared store. A false second return means no usable token
// document exists anywhere.
func (c *TokenCustodian) GetStoredTokens(ctx context.Context) (TokenSet, bool, error) {
	c.mu.Lock()
	if c.hasCached && !c.IsTokenExpired(c.cached) {
		tokens := c.cached
		c.mu.Unlock()
		return tokens, true, nil
	}
	c.mu.Unlock()
	return c.readRemote(ctx)
}

// readRemote loads the token document from the shared store and updates the
// cache.
func (c *TokenCustodian) readRemote(ctx context.Context) (TokenSet, bool, error) {
	doc, err := c.store.Get(ctx, tokenDocumentPath(c.slug))
	if errors.Is(err, docstore.ErrNotFound) {
		return TokenSet{}, false, nil
	}
	if err != nil {
		return TokenSet{}, false, err
	}
	tokens, err := decodeTokenDocument(doc.Content)
	if err != nil {
		c.log.Warn().Str("vendor", c.slug).Err(err).Msg("token document unreadable")
		return TokenSet{}, false, nil
	}
	c.mu.Lock()
	c.cached = tokens
	c.hasCached = true
	c.mu.Unlock()
	if tokens.IsZero() {
		return TokenSet{}, false, nil
	}
	return tokens, true, nil
}

// PersistTokens records tokens in the cache unconditionally, then writes
// them to the shared store conditioned on the last-read revision. Losing
// the write race is logged and swallowed: the loser's cache stays
// authoritative for its own lifetime.
func (c *TokenCustodian) PersistTokens(ctx context.Context, tokens TokenSet) error {
	c.mu.Lock()
	c.cached = tokens
	c.hasCached = true
	c.mu.Unlock()

	path := tokenDocumentPath(c.slug)
	ifMatch := ""
	if doc, err := c.store.Get(ctx, path); err == nil {
		ifMatch = doc.Revision
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}

	result, err := c.store.Put(ctx, path, encodeTokenDocument(tokens), ifMatch)
	if err != nil {
		return err
	}
	if result.Status == docstore.PutConflict {
		observability.RecordTokenWriteConflict(c.slug)
		c.log.Info().Str("vendor", c.slug).
			Str("current_revision", result.CurrentRevision).
			Msg("token write lost a revision race, keeping local cache")
		return nil
	}
	return nil
}

// EnsureFresh returns a token usable for at least the safety window,
// refreshing through the vendor exchange when needed. A failed refresh
// falls back to re-reading the shared store before being treated as
// terminal: under concurrent instances the usual cause is that someone
// else already rotated the same single-use refresh token.
func (c *TokenCustodian) EnsureFresh(ctx context.Context) (TokenSet, error) {
	tokens, ok, err := c.GetStoredTokens(ctx)
	if err != nil {
		return TokenSet{}, err
	}
	if !ok {
		return TokenSet{}, fmt.Errorf("%w: %s has no stored tokens", ErrIntegrationUnavailable, c.slug)
	}
	if !c.IsTokenExpired(tokens) {
		return tokens, nil
	}

	refreshed, refreshErr := c.refresh(ctx, tokens.RefreshToken)
	if refreshErr == nil {
		observability.RecordTokenRefresh(c.slug, "ok")
		if err := c.PersistTokens(ctx, refreshed); err != nil {
			c.log.Warn().Str("vendor", c.slug).Err(err).Msg("persisting refreshed tokens failed")
		}
		return refreshed, nil
	}

	c.log.Info().Str("vendor", c.slug).Err(refreshErr).
		Msg("refresh exchange failed, re-reading shared token document")
	remote, ok, readErr := c.readRemote(ctx)
	if readErr == nil && ok && !c.IsTokenExpired(remote) {
		observability.RecordTokenRefresh(c.slug, "recovered")
		return remote, nil
	}
	observability.RecordTokenRefresh(c.slug, "failed")
	return TokenSet{}, fmt.Errorf("%w: %s refresh failed: %v", ErrIntegrationUnavailable, c.slug, refreshErr)
}

func encodeTokenDocument(tokens TokenSet) string {
	header := map[string]any{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	}
	if !tokens.ExpiresAt.IsZero() {
		header["expires_at"] = tokens.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return docstore.ComposeDocument(header, "")
}

func decodeTokenDocument(content string) (TokenSet, error) {
	header, _, err := docstore.SplitDocument(content)
	if err != nil {
		return TokenSet{}, err
	}
	if header == nil {
		return TokenSet{}, fmt.Errorf("token document has no header")
	}
	tokens := TokenSet{
		AccessToken:  stringValue(header["access_token"]),
		RefreshToken: stringValue(header["refresh_token"]),
	}
	if raw := stringValue(header["expires_at"]); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return TokenSet{}, fmt.Errorf("bad expires_at %q: %w", raw, err)
		}
		tokens.ExpiresAt = parsed
	}
	return tokens, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
