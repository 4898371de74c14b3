package recall

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"cipherchat/internal/domain"
	"cipherchat/internal/logging"
)

const (
	// DefaultRetention is how long an entry may be recalled after it was stored.
	DefaultRetention = 30 * 24 * time.Hour
	// DefaultCapacity is the maximum number of entries kept.
	DefaultCapacity = 1000
)

// Options tune a Cache. Zero values select the defaults.
type Options struct {
	Retention time.Duration
	Capacity  int
	Clock     clock.Clock
}

// Cache maps message ids to the plaintext of self-authored encrypted
// messages so they can be shown without decrypting. The whole map is
// persisted as JSON under one key; every call reads and writes it through.
type Cache struct {
	kv        domain.KVStore
	clock     clock.Clock
	retention time.Duration
	capacity  int
	log       *logrus.Entry

	mu sync.Mutex
}

type entries map[domain.MessageID]domain.RecallEntry

// New returns a cache persisted in kv.
func New(kv domain.KVStore, opts Options, log *logrus.Entry) *Cache {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Cache{
		kv:        kv,
		clock:     opts.Clock,
		retention: opts.Retention,
		capacity:  opts.Capacity,
		log:       logging.OrDiscard(log, "recall"),
	}
}

// Store records plaintext for id, replacing any earlier entry, then
// evicts expired and excess entries.
func (c *Cache) Store(id domain.MessageID, peer domain.UserID, plaintext string, createdAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if createdAt.IsZero() {
		createdAt = now
	}
	m := c.load()
	m[id] = domain.RecallEntry{
		Content:    plaintext,
		ReceiverID: peer,
		Timestamp:  createdAt.UnixMilli(),
		StoredAt:   now.UnixMilli(),
		Seq:        nextSeq(m),
	}
	c.evict(m, now)
	return c.save(m)
}

// Recall returns the plaintext stored for id. Expired entries are deleted
// and reported as absent.
func (c *Cache) Recall(id domain.MessageID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.load()
	e, ok := m[id]
	if !ok {
		return "", false
	}
	if c.expired(e, c.clock.Now()) {
		delete(m, id)
		if err := c.save(m); err != nil {
			c.log.WithError(err).Warn("drop expired entry")
		}
		c.log.WithField("message_id", id).Debug("expired entry removed")
		return "", false
	}
	return e.Content, true
}

// ForPeer returns the live entries sent to peer, newest message first.
func (c *Cache) ForPeer(peer domain.UserID) []domain.RecalledMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	var out []domain.RecalledMessage
	for id, e := range c.load() {
		if e.ReceiverID == peer && !c.expired(e, now) {
			out = append(out, domain.RecalledMessage{ID: id, RecallEntry: e})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

// Remove deletes the entry for id.
func (c *Cache) Remove(id domain.MessageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.load()
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	return c.save(m)
}

// PurgeAll deletes every entry.
func (c *Cache) PurgeAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Delete(domain.KeyRecallMessages); err != nil {
		return fmt.Errorf("purge recall cache: %w", err)
	}
	c.log.Info("recall cache purged")
	return nil
}

// PurgeForPeer deletes every entry sent to peer.
func (c *Cache) PurgeForPeer(peer domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.load()
	removed := 0
	for id, e := range m {
		if e.ReceiverID == peer {
			delete(m, id)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	c.log.WithFields(logrus.Fields{"peer": peer, "removed": removed}).Info("recall entries purged")
	return c.save(m)
}

// Stats summarises the cache.
func (c *Cache) Stats() domain.RecallStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.load()
	st := domain.RecallStats{
		Total:        len(m),
		Capacity:     c.capacity,
		RetentionAge: c.retention.String(),
	}
	peers := make(map[domain.UserID]struct{})
	var oldest, newest int64
	first := true
	for _, e := range m {
		peers[e.ReceiverID] = struct{}{}
		if first || e.StoredAt < oldest {
			oldest = e.StoredAt
		}
		if first || e.StoredAt > newest {
			newest = e.StoredAt
		}
		first = false
	}
	st.Peers = len(peers)
	if len(m) > 0 {
		st.Oldest = time.UnixMilli(oldest)
		st.Newest = time.UnixMilli(newest)
	}
	if raw, err := json.Marshal(m); err == nil {
		st.ApproxBytes = len(raw)
	}
	return st
}

// Export returns the cache contents as indented JSON.
func (c *Cache) Export() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.MarshalIndent(c.load(), "", "  ")
}

// Import loads entries from an Export backup. With merge the backup is
// layered over the current contents; otherwise it replaces them.
// Eviction runs before the result is saved.
func (c *Cache) Import(data []byte, merge bool) error {
	var in entries
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("import recall cache: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := in
	if merge {
		m = c.load()
		for id, e := range in {
			m[id] = e
		}
	}
	if m == nil {
		m = make(entries)
	}
	c.evict(m, c.clock.Now())
	return c.save(m)
}

// evict drops expired entries, then the oldest-stored entries until the
// cache is at capacity. Ties on storedAt go to the lower sequence number.
func (c *Cache) evict(m entries, now time.Time) {
	expired := 0
	for id, e := range m {
		if c.expired(e, now) {
			delete(m, id)
			expired++
		}
	}
	over := len(m) - c.capacity
	if over > 0 {
		ids := make([]domain.MessageID, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, b := m[ids[i]], m[ids[j]]
			if a.StoredAt != b.StoredAt {
				return a.StoredAt < b.StoredAt
			}
			if a.Seq != b.Seq {
				return a.Seq < b.Seq
			}
			return ids[i] < ids[j]
		})
		for _, id := range ids[:over] {
			delete(m, id)
		}
	} else {
		over = 0
	}
	if expired > 0 || over > 0 {
		c.log.WithFields(logrus.Fields{"expired": expired, "over_capacity": over}).Debug("recall cache evicted")
	}
}

func (c *Cache) expired(e domain.RecallEntry, now time.Time) bool {
	return now.UnixMilli()-e.StoredAt > c.retention.Milliseconds()
}

// load reads the persisted map. An unreadable value is logged and treated
// as empty so a damaged cache never blocks messaging.
func (c *Cache) load() entries {
	m := make(entries)
	raw, ok, err := c.kv.Get(domain.KeyRecallMessages)
	if err != nil {
		c.log.WithError(err).Warn("read recall cache")
		return m
	}
	if !ok || raw == "" {
		return m
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		c.log.WithError(err).Warn("recall cache unreadable; starting empty")
		return make(entries)
	}
	return m
}

func (c *Cache) save(m entries) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := c.kv.Set(domain.KeyRecallMessages, string(raw)); err != nil {
		return fmt.Errorf("save recall cache: %w", err)
	}
	return nil
}

func nextSeq(m entries) uint64 {
	var hi uint64
	for _, e := range m {
		if e.Seq > hi {
			hi = e.Seq
		}
	}
	return hi + 1
}

// Compile-time assertion that Cache implements domain.PlaintextCache.
var _ domain.PlaintextCache = (*Cache)(nil)
