// Package liststore owns the in-memory collection of grocery lists for a
// session, keeps each list in sync with its remote document, and manages the
// user's memberships. Local state is authoritative: every mutation applies
// synchronously to the in-memory view, then the full updated document is
// written to the store in the background without the caller waiting on it.
package liststore

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"chicklist/internal/docstore"
	"chicklist/internal/grocery"
	"chicklist/internal/membership"
	"chicklist/internal/model"
	"chicklist/internal/prefs"
	"chicklist/internal/sharecode"
)

// ListCollection is the document-store collection holding list documents,
// keyed by share code.
const ListCollection = "lists"

// WriteResult reports the outcome of one background remote write. Consumers
// that want visibility read Results; nobody is required to.
type WriteResult struct {
	Op  string
	Key string
	Err error
}

// Config assembles a Store. Docs is required; everything else is optional.
type Config struct {
	Docs     docstore.Store
	Registry *membership.Registry
	Prefs    *prefs.Store
	Logger   *slog.Logger
	OnChange func()
}

// Store is the list synchronization core.
type Store struct {
	docs     docstore.Store
	registry *membership.Registry
	prefs    *prefs.Store
	logger   *slog.Logger
	onChange func()

	mu                sync.Mutex
	userID            string
	lists             []model.List
	activeID          string
	activeProvisional bool
	joined            map[string]struct{}
	listSubs          map[string]docstore.CancelFunc
	memberCancel      docstore.CancelFunc
	membershipSeen    bool
	started           bool
	stopped           bool
	pushSeq           uint64
	pendingPush       map[string]int

	ctx    context.Context
	cancel context.CancelFunc

	writeMu        sync.Mutex
	lastPushed     map[string]uint64
	lastMembership map[string]uint64
	writes         sync.WaitGroup
	results        chan WriteResult
}

func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = membership.NewRegistry(cfg.Docs)
	}
	return &Store{
		docs:           cfg.Docs,
		registry:       registry,
		prefs:          cfg.Prefs,
		logger:         logger,
		onChange:       cfg.OnChange,
		joined:         make(map[string]struct{}),
		listSubs:       make(map[string]docstore.CancelFunc),
		pendingPush:    make(map[string]int),
		lastPushed:     make(map[string]uint64),
		lastMembership: make(map[string]uint64),
		results:        make(chan WriteResult, 64),
	}
}

// Start begins synchronization for the given user id. An empty user id
// selects the single-user fallback: memberships come from the local prefs
// cache instead of the remote registry. Runs once per session.
func (s *Store) Start(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.userID = userID
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if userID == "" {
		s.startLocal()
		return nil
	}

	cancel, err := s.registry.Subscribe(s.ctx, userID, s.onMembership)
	if err != nil {
		// A store outage must never leave the session without a list:
		// fall through to the same synthesized-default path as "no data".
		s.logger.Warn("membership subscription failed, synthesizing default list", "error", err)
		s.mu.Lock()
		s.bootstrapLocked()
		s.mu.Unlock()
		s.notifyChanged()
		s.syncSubscriptions()
		return nil
	}

	s.mu.Lock()
	s.memberCancel = cancel
	s.mu.Unlock()
	return nil
}

// startLocal restores the session from the local cache.
func (s *Store) startLocal() {
	s.mu.Lock()
	if s.prefs != nil {
		if codes, err := s.prefs.ShareCodes(); err == nil {
			for _, code := range codes {
				s.joined[code] = struct{}{}
			}
		}
		if lists, err := s.prefs.Lists(); err == nil {
			s.lists = lists
		}
	}
	if len(s.joined) == 0 && len(s.lists) == 0 {
		s.bootstrapLocked()
	}
	s.resolveActiveLocked()
	s.mu.Unlock()

	s.notifyChanged()
	s.syncSubscriptions()
}

// onMembership is the registry subscription callback: it derives the joined
// set from the records (record key as fallback code) and re-establishes the
// per-list subscriptions.
func (s *Store) onMembership(records []membership.Record) {
	s.mu.Lock()
	first := !s.membershipSeen
	s.membershipSeen = true

	joined := make(map[string]struct{}, len(records))
	for _, rec := range records {
		joined[rec.Code] = struct{}{}
	}
	s.joined = joined

	if first && len(joined) == 0 {
		s.bootstrapLocked()
	}
	s.mu.Unlock()

	s.notifyChanged()
	s.syncSubscriptions()
}

// bootstrapLocked synthesizes the default list for a session with no
// memberships. The list is visible immediately; persistence happens in the
// background and a failure there is logged, not surfaced.
func (s *Store) bootstrapLocked() {
	code, err := sharecode.Generate()
	if err != nil {
		s.logger.Error("generate share code", "error", err)
		return
	}
	l := model.NewList(model.DefaultListName, code)
	s.lists = append(s.lists, l)
	s.joined[code] = struct{}{}
	s.activeID = l.ID
	s.activeProvisional = false
	s.rememberLocked()

	s.pushList(s.preparePushLocked(l))
	s.pushMembership(code, l.Name, s.nextSeqLocked())
}

// syncSubscriptions reconciles the live per-list subscriptions with the
// joined set: exactly one subscription per joined code, none for codes that
// left the set. Runs outside the state lock because subscribing delivers the
// current snapshot synchronously on some backends.
func (s *Store) syncSubscriptions() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	var toCancel []docstore.CancelFunc
	var toAdd []string
	for code, cancel := range s.listSubs {
		if _, ok := s.joined[code]; !ok {
			toCancel = append(toCancel, cancel)
			delete(s.listSubs, code)
		}
	}
	for code := range s.joined {
		if _, ok := s.listSubs[code]; !ok {
			toAdd = append(toAdd, code)
			s.listSubs[code] = func() {} // placeholder until the real cancel exists
		}
	}
	ctx := s.ctx
	s.mu.Unlock()

	for _, cancel := range toCancel {
		cancel()
	}
	for _, code := range toAdd {
		code := code
		cancel, err := s.docs.Subscribe(ctx, ListCollection, code, func(snap docstore.Snapshot) {
			s.onListSnapshot(snap)
		})
		if err != nil {
			s.logger.Warn("list subscription failed", "code", code, "error", err)
			s.mu.Lock()
			delete(s.listSubs, code)
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		_, stillJoined := s.joined[code]
		if stillJoined && !s.stopped {
			s.listSubs[code] = cancel
			s.mu.Unlock()
			continue
		}
		// The code left the set while we were subscribing.
		delete(s.listSubs, code)
		s.mu.Unlock()
		cancel()
	}
}

// onListSnapshot merges one remote document push into local state: replace
// the entry with the matching share code in place, else append.
func (s *Store) onListSnapshot(snap docstore.Snapshot) {
	if !snap.Exists {
		return
	}
	l, ok := listFromDoc(snap.Data)
	if !ok {
		s.logger.Warn("unreadable list document", "key", snap.Key)
		return
	}

	s.mu.Lock()
	// While one of our own writes is in flight, local state is newer than
	// anything the store can deliver, including the echo of that write.
	if s.pendingPush[snap.Key] > 0 {
		s.mu.Unlock()
		return
	}
	replaced := false
	for i := range s.lists {
		if s.lists[i].ShareCode == l.ShareCode {
			s.lists[i] = l
			replaced = true
			break
		}
	}
	if !replaced {
		s.lists = append(s.lists, l)
	}
	s.resolveActiveLocked()
	s.mirrorLocked()
	s.mu.Unlock()

	s.notifyChanged()
}

// resolveActiveLocked keeps the active pointer valid regardless of snapshot
// arrival order: current id if it still resolves, then the durably
// remembered one, then the first list.
func (s *Store) resolveActiveLocked() {
	if !s.activeProvisional && s.indexByIDLocked(s.activeID) >= 0 {
		return
	}
	if s.prefs != nil {
		if remembered, err := s.prefs.ActiveListID(); err == nil && s.indexByIDLocked(remembered) >= 0 {
			s.activeID = remembered
			s.activeProvisional = false
			return
		}
	}
	// A provisional pick stands in until the remembered list shows up,
	// without clobbering the durable preference.
	if s.indexByIDLocked(s.activeID) >= 0 {
		return
	}
	if len(s.lists) > 0 {
		s.activeID = s.lists[0].ID
		s.activeProvisional = s.prefs != nil
		return
	}
	s.activeID = ""
	s.activeProvisional = false
}

func (s *Store) indexByIDLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.lists {
		if s.lists[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByCodeLocked(code string) int {
	for i := range s.lists {
		if s.lists[i].ShareCode == code {
			return i
		}
	}
	return -1
}

// rememberLocked persists the membership codes and active pointer.
func (s *Store) rememberLocked() {
	if s.prefs == nil {
		return
	}
	codes := make([]string, 0, len(s.joined))
	for code := range s.joined {
		codes = append(codes, code)
	}
	if err := s.prefs.SetShareCodes(codes); err != nil {
		s.logger.Warn("persist share codes", "error", err)
	}
	if s.activeID != "" {
		if err := s.prefs.SetActiveListID(s.activeID); err != nil {
			s.logger.Warn("persist active list", "error", err)
		}
	}
}

// mirrorLocked mirrors the list collection to the local cache in the
// single-user fallback configuration.
func (s *Store) mirrorLocked() {
	if s.prefs == nil || s.userID != "" {
		return
	}
	if err := s.prefs.SetLists(s.lists); err != nil {
		s.logger.Warn("mirror lists", "error", err)
	}
}

func (s *Store) notifyChanged() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Store) nextSeqLocked() uint64 {
	s.pushSeq++
	return s.pushSeq
}

// pendingWrite pairs a list snapshot with its push sequence number.
type pendingWrite struct {
	list model.List
	seq  uint64
}

// preparePushLocked claims a sequence number for a list push and marks the
// write pending so snapshots for that key are held off until it lands.
func (s *Store) preparePushLocked(l model.List) pendingWrite {
	s.pendingPush[l.ShareCode]++
	return pendingWrite{list: l, seq: s.nextSeqLocked()}
}

// pushList writes the full list document in the background. Pushes carry a
// sequence number so a stale write never lands after a newer one for the
// same list; beyond that there is no retry and no caller ever waits.
func (s *Store) pushList(w pendingWrite) {
	doc := docFromList(w.list)
	code := w.list.ShareCode
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		defer func() {
			s.mu.Lock()
			if s.pendingPush[code]--; s.pendingPush[code] <= 0 {
				delete(s.pendingPush, code)
			}
			s.mu.Unlock()
		}()

		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if w.seq <= s.lastPushed[code] {
			return
		}
		s.lastPushed[code] = w.seq

		err := s.docs.Set(s.ctx, ListCollection, code, doc, false)
		if err != nil {
			s.logger.Warn("list write failed", "code", code, "error", err)
		}
		s.emit(WriteResult{Op: "set_list", Key: code, Err: err})
	}()
}

// pushMembership records a membership in the background (field merge). The
// sequence number keeps a join from resurrecting a record a later leave
// already deleted.
func (s *Store) pushMembership(code, name string, seq uint64) {
	if s.userID == "" {
		return
	}
	userID := s.userID
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if seq <= s.lastMembership[code] {
			return
		}
		s.lastMembership[code] = seq

		err := s.registry.Join(s.ctx, userID, code, name)
		if err != nil {
			s.logger.Warn("membership write failed", "code", code, "error", err)
		}
		s.emit(WriteResult{Op: "join", Key: code, Err: err})
	}()
}

func (s *Store) emit(res WriteResult) {
	select {
	case s.results <- res:
	default:
		// Nobody is draining; outcomes are best-effort by contract.
	}
}

// Results exposes background write outcomes. Reading is optional; the
// channel drops when full.
func (s *Store) Results() <-chan WriteResult {
	return s.results
}

// Flush waits for in-flight background writes. Mutations never call this;
// it exists for one-shot consumers and tests.
func (s *Store) Flush() {
	s.writes.Wait()
}

// Stop cancels the membership subscription and every list subscription.
func (s *Store) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	memberCancel := s.memberCancel
	cancels := make([]docstore.CancelFunc, 0, len(s.listSubs))
	for code, cancel := range s.listSubs {
		cancels = append(cancels, cancel)
		delete(s.listSubs, code)
	}
	ctxCancel := s.cancel
	s.mu.Unlock()

	if memberCancel != nil {
		memberCancel()
	}
	for _, cancel := range cancels {
		cancel()
	}
	s.writes.Wait()
	if ctxCancel != nil {
		ctxCancel()
	}
}

// --- Read API ---

// Lists returns the current list collection. The slice is a copy; the lists
// inside share item slices that must be treated as read-only.
func (s *Store) Lists() []model.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.List, len(s.lists))
	copy(out, s.lists)
	return out
}

// ActiveList returns the list the session is focused on.
func (s *Store) ActiveList() (model.List, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexByIDLocked(s.activeID)
	if idx < 0 {
		return model.List{}, false
	}
	return s.lists[idx], true
}

func (s *Store) ActiveListID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// UncheckedCount and CheckedCount are derived from the active list on every
// read, never stored.
func (s *Store) UncheckedCount() int {
	l, ok := s.ActiveList()
	if !ok {
		return 0
	}
	return l.UncheckedCount()
}

func (s *Store) CheckedCount() int {
	l, ok := s.ActiveList()
	if !ok {
		return 0
	}
	return l.CheckedCount()
}

// JoinedShareCodes returns the current membership set.
func (s *Store) JoinedShareCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.joined))
	for code := range s.joined {
		codes = append(codes, code)
	}
	return codes
}

// --- Mutations ---
// Every mutation applies a pure transform to the target list, replaces it in
// local state synchronously, then pushes the full document in the background.

func (s *Store) applyToActive(transform func(model.List) model.List) {
	s.mu.Lock()
	idx := s.indexByIDLocked(s.activeID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	updated := transform(s.lists[idx])
	s.lists[idx] = updated
	s.mirrorLocked()
	w := s.preparePushLocked(updated)
	s.mu.Unlock()

	s.notifyChanged()
	s.pushList(w)
}

// AddItem adds a new item to the front of the active list. An empty name
// (after trimming) is rejected silently; an empty category is guessed from
// the name; aisle values below 1 are dropped.
func (s *Store) AddItem(name, category string, aisle int, quantity string) {
	normalized, ok := model.NormalizeName(name)
	if !ok {
		return
	}
	if category == "" {
		category = grocery.Categorize(normalized)
	} else if !model.ValidCategory(category) {
		category = model.CategoryOther
	}
	var aislePtr *int
	if aisle > 0 {
		aislePtr = &aisle
	}
	s.applyToActive(func(l model.List) model.List {
		return l.AddItem(normalized, category, aislePtr, quantity)
	})
}

// EditItem rewrites an item's fields in place by id. An empty name is
// rejected silently; an empty or unknown category keeps the current one.
func (s *Store) EditItem(itemID, name, category string, aisle int, quantity string) {
	normalized, ok := model.NormalizeName(name)
	if !ok {
		return
	}
	var aislePtr *int
	if aisle > 0 {
		aislePtr = &aisle
	}
	s.applyToActive(func(l model.List) model.List {
		cat := category
		if !model.ValidCategory(cat) {
			if existing := l.Item(itemID); existing != nil {
				cat = existing.Category
			} else {
				cat = model.CategoryOther
			}
		}
		return l.UpdateItem(itemID, normalized, cat, aislePtr, quantity)
	})
}

// ToggleItem flips an item's checked state.
func (s *Store) ToggleItem(itemID string) {
	s.applyToActive(func(l model.List) model.List {
		return l.ToggleItem(itemID)
	})
}

// RemoveItem deletes one item from the active list.
func (s *Store) RemoveItem(itemID string) {
	s.applyToActive(func(l model.List) model.List {
		return l.RemoveItem(itemID)
	})
}

// RemoveChecked deletes every checked item from the active list.
func (s *Store) RemoveChecked() {
	s.applyToActive(func(l model.List) model.List {
		return l.RemoveChecked()
	})
}

// RenameList renames any list by id. Empty names are rejected silently.
func (s *Store) RenameList(id, name string) {
	name, ok := trimmedName(name)
	if !ok {
		return
	}

	s.mu.Lock()
	idx := s.indexByIDLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	updated := s.lists[idx].Rename(name)
	s.lists[idx] = updated
	s.mirrorLocked()
	w := s.preparePushLocked(updated)
	s.mu.Unlock()

	s.notifyChanged()
	s.pushList(w)
}

// SetActive switches the active list and remembers the choice durably.
// Unknown ids are ignored.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	if s.indexByIDLocked(id) < 0 {
		s.mu.Unlock()
		return
	}
	s.activeID = id
	s.activeProvisional = false
	if s.prefs != nil {
		if err := s.prefs.SetActiveListID(id); err != nil {
			s.logger.Warn("persist active list", "error", err)
		}
	}
	s.mu.Unlock()
	s.notifyChanged()
}

// CreateList makes a fresh empty list, shows it immediately, makes it
// active, and persists the document and membership in the background.
// Returns the zero List when the name is empty.
func (s *Store) CreateList(name string) model.List {
	name, ok := trimmedName(name)
	if !ok {
		return model.List{}
	}
	code, err := sharecode.Generate()
	if err != nil {
		s.logger.Error("generate share code", "error", err)
		return model.List{}
	}
	l := model.NewList(name, code)

	s.mu.Lock()
	s.lists = append(s.lists, l)
	s.joined[code] = struct{}{}
	s.activeID = l.ID
	s.activeProvisional = false
	s.rememberLocked()
	s.mirrorLocked()
	w := s.preparePushLocked(l)
	mseq := s.nextSeqLocked()
	s.mu.Unlock()

	s.notifyChanged()
	s.syncSubscriptions()
	s.pushList(w)
	s.pushMembership(code, l.Name, mseq)
	return l
}

// Join adds the session to the list behind the given share code. Malformed
// codes are rejected silently. When the caller pre-fetched a snapshot of the
// target list, it is shown immediately instead of waiting for the
// subscription to deliver it.
func (s *Store) Join(code string, prefetched *model.List) {
	code = sharecode.Normalize(code)
	if !sharecode.Valid(code) {
		return
	}

	var name string
	s.mu.Lock()
	s.joined[code] = struct{}{}
	if prefetched != nil {
		name = prefetched.Name
		if s.indexByCodeLocked(code) < 0 {
			pl := *prefetched
			pl.ShareCode = code
			s.lists = append(s.lists, pl)
		}
	}
	s.rememberLocked()
	s.mirrorLocked()
	mseq := s.nextSeqLocked()
	s.mu.Unlock()

	s.notifyChanged()
	s.syncSubscriptions()
	s.pushMembership(code, name, mseq)
}

// Leave removes the session from a list. Leaving the last remaining list is
// a no-op: the local list count never drops to zero.
func (s *Store) Leave(id string) {
	s.mu.Lock()
	idx := s.indexByIDLocked(id)
	if idx < 0 || len(s.lists) <= 1 {
		s.mu.Unlock()
		return
	}
	code := s.lists[idx].ShareCode
	s.lists = append(s.lists[:idx], s.lists[idx+1:]...)
	delete(s.joined, code)
	if s.activeID == id {
		s.activeID = s.lists[0].ID
		s.activeProvisional = false
		if s.prefs != nil {
			if err := s.prefs.SetActiveListID(s.activeID); err != nil {
				s.logger.Warn("persist active list", "error", err)
			}
		}
	}
	s.rememberLocked()
	s.mirrorLocked()
	userID := s.userID
	mseq := s.nextSeqLocked()
	s.mu.Unlock()

	s.notifyChanged()
	s.syncSubscriptions()

	if userID != "" {
		s.writes.Add(1)
		go func() {
			defer s.writes.Done()
			s.writeMu.Lock()
			defer s.writeMu.Unlock()
			if mseq <= s.lastMembership[code] {
				return
			}
			s.lastMembership[code] = mseq

			err := s.registry.Leave(s.ctx, userID, code)
			if err != nil {
				s.logger.Warn("membership delete failed", "code", code, "error", err)
			}
			s.emit(WriteResult{Op: "leave", Key: code, Err: err})
		}()
	}
}

// trimmedName validates a list name: trimmed, non-empty, case untouched.
func trimmedName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	return name, name != ""
}
