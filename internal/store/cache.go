package store

import (
	"context"
	"errors"
	"fmt"

	"go.stacker.dev/stk/internal/store/storage"
)

// cacheRecord is the soft, rebuildable metadata tracked per branch.
type cacheRecord struct {
	PRURL   string `json:"pr_url,omitempty"`
	BaseSHA string `json:"base_sha,omitempty"`
}

// Cache holds per-branch soft state: the forge change-request URL and
// the commit the branch was based on when first tracked. Nothing here
// is authoritative; every operation degrades to "not present" instead
// of failing when the record or backend is missing.
type Cache struct {
	db *storage.DB
}

// NewCache wraps a storage backend as a Cache.
func NewCache(backend storage.Backend) *Cache {
	return &Cache{db: storage.NewDB(backend)}
}

func cacheKey(branch string) string { return "cache/" + branch + ".json" }

func (c *Cache) get(ctx context.Context, branch string) cacheRecord {
	var rec cacheRecord
	if err := c.db.Get(ctx, cacheKey(branch), &rec); err != nil {
		return cacheRecord{}
	}
	return rec
}

func (c *Cache) put(ctx context.Context, branch string, rec cacheRecord, msg string) error {
	if rec == (cacheRecord{}) {
		return c.db.Delete(ctx, cacheKey(branch), msg)
	}
	return c.db.Set(ctx, cacheKey(branch), rec, msg)
}

// GetPRURL returns the cached change-request URL for branch, if any.
func (c *Cache) GetPRURL(ctx context.Context, branch string) (string, bool) {
	rec := c.get(ctx, branch)
	return rec.PRURL, rec.PRURL != ""
}

// SetPRURL records a change-request URL for branch.
func (c *Cache) SetPRURL(ctx context.Context, branch, url string) error {
	rec := c.get(ctx, branch)
	rec.PRURL = url
	return c.put(ctx, branch, rec, fmt.Sprintf("cache: set pr url for %s", branch))
}

// RemovePRURL forgets the cached change-request URL for branch.
func (c *Cache) RemovePRURL(ctx context.Context, branch string) error {
	rec := c.get(ctx, branch)
	rec.PRURL = ""
	return c.put(ctx, branch, rec, fmt.Sprintf("cache: clear pr url for %s", branch))
}

// GetBaseSHA returns the commit branch was based on when first tracked.
func (c *Cache) GetBaseSHA(ctx context.Context, branch string) (string, bool) {
	rec := c.get(ctx, branch)
	return rec.BaseSHA, rec.BaseSHA != ""
}

// SetBaseSHA records the commit branch was based on when first tracked.
func (c *Cache) SetBaseSHA(ctx context.Context, branch, sha string) error {
	rec := c.get(ctx, branch)
	rec.BaseSHA = sha
	return c.put(ctx, branch, rec, fmt.Sprintf("cache: set base sha for %s", branch))
}

// RemoveBaseSHA forgets the recorded base commit for branch.
func (c *Cache) RemoveBaseSHA(ctx context.Context, branch string) error {
	rec := c.get(ctx, branch)
	rec.BaseSHA = ""
	return c.put(ctx, branch, rec, fmt.Sprintf("cache: clear base sha for %s", branch))
}

// Rename migrates a branch's cache record from oldName to newName,
// preserving it across structural edits such as a rename command.
func (c *Cache) Rename(ctx context.Context, oldName, newName string) error {
	rec := c.get(ctx, oldName)
	if rec == (cacheRecord{}) {
		return nil
	}
	if err := c.db.Set(ctx, cacheKey(newName), rec, fmt.Sprintf("cache: migrate %s to %s", oldName, newName)); err != nil {
		return err
	}
	return c.db.Delete(ctx, cacheKey(oldName), fmt.Sprintf("cache: migrate %s to %s", oldName, newName))
}

// Remove deletes branch's entire cache record.
func (c *Cache) Remove(ctx context.Context, branch string) error {
	err := c.db.Delete(ctx, cacheKey(branch), fmt.Sprintf("cache: remove %s", branch))
	if errors.Is(err, storage.ErrNotExist) {
		return nil
	}
	return err
}
