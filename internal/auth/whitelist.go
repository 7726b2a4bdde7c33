package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pkordes/travelogue/internal/docstore"
	"github.com/pkordes/travelogue/internal/domain"
)

// Whitelist gates access by email. Each allowed user has a document at
// whitelist/{lowercased email}; a truthy isAdmin field grants admin rights.
type Whitelist struct {
	ds docstore.Store
}

// NewWhitelist returns a Whitelist backed by ds.
func NewWhitelist(ds docstore.Store) *Whitelist {
	return &Whitelist{ds: ds}
}

func whitelistPath(email string) docstore.Path {
	return docstore.Doc(docstore.CollectionWhitelist, strings.ToLower(strings.TrimSpace(email)))
}

// Check returns id with IsAdmin filled in, or domain.ErrForbidden when the
// email is not whitelisted.
func (w *Whitelist) Check(ctx context.Context, id Identity) (Identity, error) {
	if strings.TrimSpace(id.Email) == "" {
		return Identity{}, fmt.Errorf("auth.Whitelist.Check: no email: %w", domain.ErrForbidden)
	}
	snap, err := w.ds.Get(ctx, whitelistPath(id.Email))
	if errors.Is(err, domain.ErrNotFound) {
		return Identity{}, fmt.Errorf("auth.Whitelist.Check %s: %w", id.Email, domain.ErrForbidden)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("auth.Whitelist.Check: %w", err)
	}
	isAdmin, _ := snap.Data["isAdmin"].(bool)
	id.IsAdmin = isAdmin
	return id, nil
}

// Allow adds or updates a whitelist entry.
func (w *Whitelist) Allow(ctx context.Context, email string, isAdmin bool) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("auth.Whitelist.Allow: %w: empty email", domain.ErrValidation)
	}
	err := w.ds.Set(ctx, whitelistPath(email), docstore.Document{
		"email":   strings.ToLower(strings.TrimSpace(email)),
		"isAdmin": isAdmin,
	})
	if err != nil {
		return fmt.Errorf("auth.Whitelist.Allow: %w", err)
	}
	return nil
}

// Revoke removes a whitelist entry.
func (w *Whitelist) Revoke(ctx context.Context, email string) error {
	if err := w.ds.Delete(ctx, whitelistPath(email)); err != nil {
		return fmt.Errorf("auth.Whitelist.Revoke: %w", err)
	}
	return nil
}
