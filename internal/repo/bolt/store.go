// Package bolt is an embedded repo.Store on go.etcd.io/bbolt with JSON values.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/hamed0406/uptimemon/internal/domain"
	"github.com/hamed0406/uptimemon/internal/repo"
)

var (
	monitorsBucket  = []byte("monitors")
	historyBucket   = []byte("status_history")
	incidentsBucket = []byte("incidents")
	// byMonitorBucket maps "<monitor>:<seq>" to an incident id, in creation order.
	byMonitorBucket = []byte("incidents_by_monitor")
	// openBucket maps a monitor id to its single open incident id.
	openBucket     = []byte("open_incidents")
	channelsBucket = []byte("channels")
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	db *bbolt.DB
}

func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return s, nil
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{monitorsBucket, historyBucket, incidentsBucket, byMonitorBucket, openBucket, channelsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error { return s.db.Close() }

func prefix(id domain.MonitorID) []byte { return []byte(string(id) + ":") }

func seqKey(id domain.MonitorID, a, b uint64) []byte {
	return []byte(fmt.Sprintf("%s:%020d:%020d", id, a, b))
}

// scanPrefix returns values whose key starts with p, in key order. Values are copied.
func scanPrefix(b *bbolt.Bucket, p []byte) [][]byte {
	var out [][]byte
	c := b.Cursor()
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		out = append(out, append([]byte(nil), v...))
	}
	return out
}

func put(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put(key, data)
}

// ---- monitors ----

func (s *Store) ListActiveMonitors(ctx context.Context) ([]domain.Monitor, error) {
	var out []domain.Monitor
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(monitorsBucket).ForEach(func(k, v []byte) error {
			var m domain.Monitor
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("failed to unmarshal monitor %s: %w", k, err)
			}
			if m.Active {
				out = append(out, m)
			}
			return nil
		})
	})
	return out, err
}

func (s *Store) UpdateMonitorStatus(ctx context.Context, id domain.MonitorID, u domain.StatusUpdate) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(monitorsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return repo.ErrNotFound
		}
		var m domain.Monitor
		if err := json.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("failed to unmarshal monitor %s: %w", id, err)
		}
		m.Apply(u)
		return put(b, []byte(id), m)
	})
}

func (s *Store) UpsertMonitor(ctx context.Context, m domain.Monitor) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(monitorsBucket), []byte(m.ID), m)
	})
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	var m domain.Monitor
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(monitorsBucket).Get([]byte(id))
		if v == nil {
			return repo.ErrNotFound
		}
		return json.Unmarshal(v, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(monitorsBucket)
		if b.Get([]byte(id)) == nil {
			return repo.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// ---- history ----

// AppendStatusHistory keys entries "<monitor>:<unixnano>:<seq>" so a prefix scan is chronological.
func (s *Store) AppendStatusHistory(ctx context.Context, e *domain.StatusHistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(historyBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return put(b, seqKey(e.MonitorID, uint64(e.Timestamp.UnixNano()), seq), e)
	})
}

func (s *Store) ListStatusHistory(ctx context.Context, id domain.MonitorID, limit int) ([]domain.StatusHistoryEntry, error) {
	var raw [][]byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		raw = scanPrefix(tx.Bucket(historyBucket), prefix(id))
		return nil
	}); err != nil {
		return nil, err
	}
	out := make([]domain.StatusHistoryEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		var e domain.StatusHistoryEntry
		if err := json.Unmarshal(raw[i], &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ---- incidents ----

func getIncident(tx *bbolt.Tx, id []byte) (*domain.Incident, error) {
	v := tx.Bucket(incidentsBucket).Get(id)
	if v == nil {
		return nil, repo.ErrNotFound
	}
	var inc domain.Incident
	if err := json.Unmarshal(v, &inc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident %s: %w", id, err)
	}
	return &inc, nil
}

func (s *Store) FindOpenIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	var inc *domain.Incident
	err := s.db.View(func(tx *bbolt.Tx) error {
		iid := tx.Bucket(openBucket).Get([]byte(id))
		if iid == nil {
			return nil
		}
		var err error
		inc, err = getIncident(tx, iid)
		return err
	})
	return inc, err
}

func (s *Store) CreateIncident(ctx context.Context, inc *domain.Incident) (string, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		open := tx.Bucket(openBucket)
		if inc.Open() {
			if open.Get([]byte(inc.MonitorID)) != nil {
				return repo.ErrIncidentOpen
			}
			if err := open.Put([]byte(inc.MonitorID), []byte(inc.ID)); err != nil {
				return err
			}
		}
		idx := tx.Bucket(byMonitorBucket)
		seq, err := idx.NextSequence()
		if err != nil {
			return err
		}
		if err := idx.Put(seqKey(inc.MonitorID, 0, seq), []byte(inc.ID)); err != nil {
			return err
		}
		return put(tx.Bucket(incidentsBucket), []byte(inc.ID), inc)
	})
	if err != nil {
		return "", err
	}
	return inc.ID, nil
}

func (s *Store) UpdateIncident(ctx context.Context, id string, p domain.IncidentPatch) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		inc, err := getIncident(tx, []byte(id))
		if err != nil {
			return err
		}
		p.ApplyTo(inc)
		if !inc.Open() {
			open := tx.Bucket(openBucket)
			if string(open.Get([]byte(inc.MonitorID))) == id {
				if err := open.Delete([]byte(inc.MonitorID)); err != nil {
					return err
				}
			}
		}
		return put(tx.Bucket(incidentsBucket), []byte(id), inc)
	})
}

func (s *Store) ListIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error) {
	var out []domain.Incident
	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, iid := range scanPrefix(tx.Bucket(byMonitorBucket), prefix(id)) {
			inc, err := getIncident(tx, iid)
			if err != nil {
				return err
			}
			out = append(out, *inc)
		}
		return nil
	})
	return out, err
}

// ---- channels ----

func (s *Store) UpsertChannel(ctx context.Context, c domain.NotificationChannel) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(channelsBucket), []byte(c.ID), c)
	})
}

func (s *Store) ListEnabledChannels(ctx context.Context, id domain.MonitorID) ([]domain.NotificationChannel, error) {
	var out []domain.NotificationChannel
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(channelsBucket).ForEach(func(k, v []byte) error {
			var c domain.NotificationChannel
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("failed to unmarshal channel %s: %w", k, err)
			}
			if c.Enabled && c.AppliesTo(id) {
				out = append(out, c)
			}
			return nil
		})
	})
	return out, err
}
