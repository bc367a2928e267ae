package photos

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/satmihir/photocache/internal/gateway"
	"github.com/satmihir/photocache/internal/images"
	"github.com/satmihir/photocache/internal/retry"
)

var (
	ErrClosed         = errors.New("photo collection closed")
	ErrUnknownPhoto   = errors.New("no such photo")
	ErrNotPlaceholder = errors.New("slot is not a placeholder")
)

// Collection is the photo sequence of one stamp. Obtain it from
// Manager.For; all methods are safe for concurrent use.
type Collection struct {
	stampID string
	hint    string
	images  ImagePipeline
	records gateway.RecordStore
	retry   retry.Config
	owner   *Manager
	log     logrus.FieldLogger

	mu      sync.Mutex
	slots   []*Slot
	nextPos int
	loaded  bool
	// sending holds photos whose upload or commit is running, from the
	// first upload attempt until the commit settled.
	sending map[string]struct{}
	subs    map[int]chan Snapshot
	nextSub int
}

// AddPhotos registers a placeholder per raw photo, saves every photo
// locally in parallel and returns once all local saves are done. Uploads
// continue in the background; their outcomes arrive on the returned
// channel, which is closed after the last one.
//
// The channel first carries a StageLocalSaveFailed event per failed save,
// then one StageLocalSaved event, then one StageCommitted or
// StageUploadFailed event per saved photo that was not deleted meanwhile.
// It is buffered for the whole batch, so callers need not drain it.
func (c *Collection) AddPhotos(ctx context.Context, raws [][]byte) (<-chan Event, error) {
	if c.owner.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.ensureLoaded(ctx)

	events := make(chan Event, len(raws)+1)
	ids := c.addPlaceholders(len(raws))

	saved := make([]string, len(raws))
	var g errgroup.Group
	for i, raw := range raws {
		g.Go(func() error {
			name, err := c.images.SaveLocal(ctx, raw)
			if c.applySave(ctx, ids[i], name, err) {
				saved[i] = name
			} else if err != nil {
				events <- Event{Stage: StageLocalSaveFailed, ID: ids[i], Err: err}
			}
			return nil
		})
	}
	g.Wait()

	saved = slices.DeleteFunc(saved, func(s string) bool { return s == "" })
	events <- Event{Stage: StageLocalSaved, Filenames: saved}

	var uploads sync.WaitGroup
	for _, name := range saved {
		uploads.Add(1)
		started := c.owner.goAsync(func(ctx context.Context) {
			defer uploads.Done()
			defer c.release(name)
			if ev, ok := c.upload(ctx, name); ok {
				events <- ev
			}
		})
		if !started {
			c.release(name)
			uploads.Done()
			events <- Event{Stage: StageUploadFailed, Filename: name, Err: ErrClosed}
		}
	}
	go func() {
		uploads.Wait()
		close(events)
	}()

	return events, nil
}

// ensureLoaded merges the stored records once, so new photos are
// positioned after the ones saved by earlier runs.
func (c *Collection) ensureLoaded(ctx context.Context) {
	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if loaded {
		return
	}
	if err := c.Load(ctx); err != nil {
		c.log.WithError(err).Warn("Failed to load stored photos, positioning new photos by clock")
	}
}

func (c *Collection) addPlaceholders(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		// Stored positions are unknown. Capture time in milliseconds stays
		// above the small positions of earlier runs.
		c.nextPos = max(c.nextPos, int(time.Now().UnixMilli()))
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "pending-" + ulid.Make().String()
		c.slots = append(c.slots, &Slot{
			ID:     ids[i],
			State:  StatePlaceholder,
			Record: gateway.PhotoRecord{Position: c.nextPos},
		})
		c.nextPos++
	}
	c.publishLocked(false)
	return ids
}

// applySave replaces the placeholder id by the saved photo. It reports
// whether the photo joined the sequence. A placeholder that was canceled
// while saving has its files removed again.
func (c *Collection) applySave(ctx context.Context, id, name string, saveErr error) bool {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		if saveErr == nil {
			c.log.WithField("file", name).Debug("Placeholder canceled during save, discarding photo")
			if err := c.images.Remove(ctx, name, ""); err != nil {
				c.log.WithError(err).WithField("file", name).Warn("Failed to discard canceled photo")
			}
		}
		return false
	}

	if saveErr != nil {
		c.slots = slices.Delete(c.slots, i, i+1)
		c.publishLocked(false)
		c.mu.Unlock()
		c.log.WithError(saveErr).Warn("Local save failed, dropping placeholder")
		return false
	}

	slot := c.slots[i]
	slot.ID = name
	slot.State = StateUploading
	slot.Record.LocalFilename = name
	slot.Record.UploadState = gateway.Uploading
	c.sending[name] = struct{}{}
	c.publishLocked(false)
	c.mu.Unlock()
	return true
}

// upload sends one photo and commits it. The returned event is only
// meaningful when ok is true; a photo deleted meanwhile gets no event.
func (c *Collection) upload(ctx context.Context, name string) (Event, bool) {
	storagePath, err := c.images.Upload(ctx, name, c.hint)
	if err != nil {
		if !c.has(name) {
			return Event{}, false
		}
		return Event{Stage: StageUploadFailed, Filename: name, Err: err}, true
	}
	return c.commit(ctx, name, storagePath)
}

// commit moves an uploaded photo to the committed state with a single
// record write. Commits for deleted photos are dropped and their blob is
// removed again.
func (c *Collection) commit(ctx context.Context, name, storagePath string) (Event, bool) {
	log := c.log.WithFields(logrus.Fields{"file": name, "path": storagePath})

	c.mu.Lock()
	i := c.indexLocked(name)
	if i < 0 || c.slots[i].State != StateUploading {
		c.mu.Unlock()
		log.Info("Photo deleted before its upload finished, discarding upload")
		c.images.DeleteRemote(ctx, storagePath)
		return Event{}, false
	}
	rec := c.slots[i].Record.Committed(storagePath)
	c.mu.Unlock()

	if err := c.records.CommitPhoto(ctx, c.stampID, rec); err != nil {
		log.WithError(err).Warn("Record write failed, photo stays uploading")
		c.images.DeleteRemote(ctx, storagePath)
		if !c.has(name) {
			return Event{}, false
		}
		return Event{Stage: StageUploadFailed, Filename: name, Err: err}, true
	}

	c.mu.Lock()
	i = c.indexLocked(name)
	if i < 0 {
		// Deleted while the record was being written.
		c.mu.Unlock()
		log.Info("Photo deleted during commit, rolling back")
		if err := c.records.DeletePhoto(ctx, c.stampID, name); err != nil {
			log.WithError(err).Warn("Failed to roll back photo record")
		}
		c.images.DeleteRemote(ctx, storagePath)
		return Event{}, false
	}
	c.slots[i].State = StateCommitted
	c.slots[i].Record = rec
	c.publishLocked(false)
	c.mu.Unlock()

	log.Info("Photo committed")
	return Event{Stage: StageCommitted, Filename: name, StoragePath: storagePath}, true
}

// Delete removes a saved photo from the sequence at once, then deletes its
// local files, its remote blob and its record. Remote failures are logged
// and swallowed. When the last photo goes, the emptied snapshot is only
// published after the cleanup finished.
func (c *Collection) Delete(ctx context.Context, filename string) error {
	c.mu.Lock()
	i := c.indexLocked(filename)
	if i < 0 || c.slots[i].State == StatePlaceholder {
		c.mu.Unlock()
		return ErrUnknownPhoto
	}
	slot := c.slots[i]
	c.slots = slices.Delete(c.slots, i, i+1)
	slot.State = StateDeleted
	last := len(c.slots) == 0
	if !last {
		c.publishLocked(false)
	}
	c.mu.Unlock()

	log := c.log.WithField("file", filename)
	err := c.images.Remove(ctx, filename, slot.Record.RemoteStoragePath)
	if slot.Record.UploadState == gateway.Committed {
		if rerr := c.records.DeletePhoto(ctx, c.stampID, filename); rerr != nil {
			log.WithError(rerr).Warn("Ignoring record delete failure")
		}
	}
	log.Info("Photo deleted")

	if last {
		c.mu.Lock()
		c.publishLocked(len(c.slots) == 0)
		c.mu.Unlock()
	}
	return err
}

// CancelPlaceholder drops a placeholder whose local save has not finished.
// If the save succeeds anyway, its files are discarded.
func (c *Collection) CancelPlaceholder(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return ErrUnknownPhoto
	}
	if c.slots[i].State != StatePlaceholder {
		return ErrNotPlaceholder
	}
	c.slots[i].State = StateDeleted
	c.slots = slices.Delete(c.slots, i, i+1)
	c.publishLocked(false)
	return nil
}

// RetryUploads re-uploads every photo still in the uploading state, except
// those with an upload or commit in flight, and returns how many were
// committed. Nothing retries on its own; callers decide when to call this.
func (c *Collection) RetryUploads(ctx context.Context) (int, error) {
	if c.owner.ctx.Err() != nil {
		return 0, ErrClosed
	}

	var pending []string
	c.mu.Lock()
	for _, s := range c.slots {
		if s.State != StateUploading || c.images.Uploading(s.ID) {
			continue
		}
		if _, busy := c.sending[s.ID]; busy {
			continue
		}
		c.sending[s.ID] = struct{}{}
		pending = append(pending, s.ID)
	}
	c.mu.Unlock()

	var (
		mu        sync.Mutex
		committed int
		errs      []error
	)
	var g errgroup.Group
	for _, name := range pending {
		g.Go(func() error {
			defer c.release(name)
			storagePath, err := retry.Do(ctx, c.retry, func() (string, error, bool) {
				path, err := c.images.Upload(ctx, name, c.hint)
				retryable := err != nil && !errors.Is(err, images.ErrUploadInProgress) && ctx.Err() == nil
				return path, err, retryable && c.has(name)
			})
			if err != nil {
				if errors.Is(err, images.ErrUploadInProgress) {
					return nil
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			if ev, ok := c.commit(ctx, name, storagePath); ok {
				mu.Lock()
				if ev.Stage == StageCommitted {
					committed++
				} else {
					errs = append(errs, ev.Err)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	c.log.WithFields(logrus.Fields{"pending": len(pending), "committed": committed}).Info("Retried uploads")
	return committed, errors.Join(errs...)
}

// Load merges the stamp's stored records into the sequence. Photos already
// present are left alone.
func (c *Collection) Load(ctx context.Context) error {
	recs, err := c.records.ListPhotos(ctx, c.stampID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded = true
	for _, rec := range recs {
		if c.indexLocked(rec.LocalFilename) >= 0 {
			continue
		}
		state := StateUploading
		if rec.UploadState == gateway.Committed {
			state = StateCommitted
		}
		c.slots = append(c.slots, &Slot{ID: rec.LocalFilename, State: state, Record: rec})
		c.nextPos = max(c.nextPos, rec.Position+1)
	}
	slices.SortStableFunc(c.slots, func(a, b *Slot) int {
		return a.Record.Position - b.Record.Position
	})
	c.publishLocked(false)
	return nil
}

// Photos returns the current sequence in insertion order.
func (c *Collection) Photos() []Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel of snapshots, starting with the current one.
// Delivery is latest-wins: a slow reader skips intermediate snapshots but
// always sees the most recent one.
func (c *Collection) Subscribe() (int, <-chan Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- Snapshot{Slots: c.snapshotLocked()}
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe closes the subscription's channel.
func (c *Collection) Unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Collection) release(name string) {
	c.mu.Lock()
	delete(c.sending, name)
	c.mu.Unlock()
}

func (c *Collection) has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(name) >= 0
}

func (c *Collection) indexLocked(id string) int {
	return slices.IndexFunc(c.slots, func(s *Slot) bool { return s.ID == id })
}

func (c *Collection) snapshotLocked() []Slot {
	out := make([]Slot, len(c.slots))
	for i, s := range c.slots {
		out[i] = *s
	}
	return out
}

// publishLocked sends the current snapshot to every subscriber. Callers
// hold c.mu, so this is the only sender and the drain below frees the slot.
func (c *Collection) publishLocked(emptied bool) {
	snap := Snapshot{Slots: c.snapshotLocked(), Emptied: emptied}
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
