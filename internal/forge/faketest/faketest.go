// Package faketest implements a fake Forge.Repository for engine tests.
// It keeps every change-request in memory rather than behind an HTTP
// server, since engine tests exercise the Repository interface directly
// and never need a real network round trip. Modeled in spirit on the
// teacher's shamhub fake, simplified to match the leaner Repository
// contract this module defines.
package faketest

import (
	"context"
	"fmt"
	"sync"

	"go.stacker.dev/stk/internal/forge"
)

// change is the mutable record backing one fake change-request.
type change struct {
	info      forge.PRInfo
	ciStatus  forge.CIStatus
	autoMerge bool
	ready     bool
}

// Repository is an in-memory forge.Repository double.
type Repository struct {
	mu sync.Mutex

	nextNumber int
	changes    map[string]*change // keyed by branch (head)
	byNumber   map[int]*change

	branches map[string]bool // pushed branches

	// AuthErr, when set, is returned by CheckAuth.
	AuthErr error
	// MergeErr, when set by SetMergeError, is returned once by MergePR
	// for the named branch, then cleared.
	mergeErr map[string]error
}

// New creates an empty fake repository.
func New() *Repository {
	return &Repository{
		changes:  make(map[string]*change),
		byNumber: make(map[int]*change),
		branches: make(map[string]bool),
		mergeErr: make(map[string]error),
	}
}

// CheckAuth returns AuthErr, nil by default.
func (r *Repository) CheckAuth(ctx context.Context) error {
	return r.AuthErr
}

// SeedPR registers an existing change-request for branch without going
// through CreatePR, for tests that want a pre-populated fixture.
func (r *Repository) SeedPR(branch string, info forge.PRInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Number == 0 {
		r.nextNumber++
		info.Number = r.nextNumber
	} else if info.Number > r.nextNumber {
		r.nextNumber = info.Number
	}
	if info.State == 0 {
		info.State = forge.ChangeOpen
	}
	c := &change{info: info, ciStatus: forge.CINone}
	r.changes[branch] = c
	r.byNumber[info.Number] = c
}

// SetCIStatus sets the CI status reported for number's change-request.
func (r *Repository) SetCIStatus(number int, status forge.CIStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byNumber[number]; ok {
		c.ciStatus = status
	}
}

// SetMergeError makes the next MergePR call for branch's change-request
// fail with err, then clears itself.
func (r *Repository) SetMergeError(branch string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeErr[branch] = err
}

// SetState forces the change-request state for branch, e.g. to simulate
// a merge or close that happened outside the tool.
func (r *Repository) SetState(branch string, state forge.ChangeState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.changes[branch]; ok {
		c.info.State = state
	}
}

func (r *Repository) PRExists(ctx context.Context, branch string) (forge.PRInfo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.changes[branch]
	if !ok {
		return forge.PRInfo{}, false, nil
	}
	return c.info, true, nil
}

func (r *Repository) CheckPRsExist(ctx context.Context, branches []string) (map[string]forge.PRInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]forge.PRInfo)
	for _, b := range branches {
		if c, ok := r.changes[b]; ok {
			out[b] = c.info
		}
	}
	return out, nil
}

func (r *Repository) GetPRInfo(ctx context.Context, number int) (forge.PRInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byNumber[number]
	if !ok {
		return forge.PRInfo{}, fmt.Errorf("no such change-request: #%d", number)
	}
	return c.info, nil
}

func (r *Repository) CreatePR(ctx context.Context, req forge.SubmitRequest) (forge.PRInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextNumber++
	info := forge.PRInfo{
		Number: r.nextNumber,
		URL:    fmt.Sprintf("https://fake.example/pr/%d", r.nextNumber),
		Head:   req.Head,
		Base:   req.Base,
		State:  forge.ChangeOpen,
		Title:  req.Title,
	}
	c := &change{info: info, ciStatus: forge.CINone, ready: !req.Draft}
	r.changes[req.Head] = c
	r.byNumber[info.Number] = c
	r.branches[req.Head] = true
	return info, nil
}

func (r *Repository) UpdatePRBase(ctx context.Context, number int, newBase string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byNumber[number]
	if !ok {
		return fmt.Errorf("no such change-request: #%d", number)
	}
	c.info.Base = newBase
	return nil
}

func (r *Repository) UpdatePRBody(ctx context.Context, number int, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNumber[number]; !ok {
		return fmt.Errorf("no such change-request: #%d", number)
	}
	return nil
}

func (r *Repository) MarkPRReady(ctx context.Context, number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byNumber[number]
	if !ok {
		return fmt.Errorf("no such change-request: #%d", number)
	}
	c.ready = true
	return nil
}

func (r *Repository) EnableAutoMerge(ctx context.Context, number int, method forge.MergeMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byNumber[number]
	if !ok {
		return fmt.Errorf("no such change-request: #%d", number)
	}
	c.autoMerge = true
	return nil
}

func (r *Repository) MergePR(ctx context.Context, number int, method forge.MergeMethod, autoConfirm bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byNumber[number]
	if !ok {
		return fmt.Errorf("no such change-request: #%d", number)
	}
	if err := r.mergeErr[c.info.Head]; err != nil {
		delete(r.mergeErr, c.info.Head)
		return err
	}
	c.info.State = forge.ChangeMerged
	return nil
}

func (r *Repository) PushBranch(ctx context.Context, branch string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branches[branch] = true
	return nil
}

func (r *Repository) GetPRChain(ctx context.Context, number int) ([]forge.PRInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("no such change-request: #%d", number)
	}

	var chain []forge.PRInfo
	cur := c
	for {
		chain = append([]forge.PRInfo{cur.info}, chain...)
		parent, ok := r.changes[cur.info.Base]
		if !ok {
			break
		}
		cur = parent
	}
	return chain, nil
}

func (r *Repository) CIStatus(ctx context.Context, number int) (forge.CIStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byNumber[number]
	if !ok {
		return forge.CINone, fmt.Errorf("no such change-request: #%d", number)
	}
	return c.ciStatus, nil
}

var _ forge.Repository = (*Repository)(nil)
