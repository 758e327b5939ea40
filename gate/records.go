package gate

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"healx.io/healx/common/logging"
	se "healx.io/healx/errors"
	md "healx.io/healx/models"
	"healx.io/healx/payload"
)

const defaultPoolSize = 4

// Records fetches the shared records of a granted visit in session order. Records which no
// longer exist or do not belong to the session owner are dropped. A record whose payload can not
// be decrypted is still returned with a nil payload and no preview.
func (v *Visit) Records(ctx context.Context) ([]*md.SharedRecord, error) {
	if v.state != Granted {
		return nil, se.NewForbidden("access to shared records is not granted")
	}
	sess := v.session
	clog := logging.WithFuncName().WithField("ownerID", sess.OwnerID)
	oc, err := v.gate.Cipher.ForOwner(sess.OwnerID)
	if err != nil {
		clog.WithError(err).Error("error deriving owner cipher")
		return nil, se.NewServiceFailure("failed to fetch shared records").WithCause(err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// every fetcher owns one slot of results so that session order survives concurrent fetches
	results := make([]*md.SharedRecord, len(sess.RecordIDs))
	poolSize := v.gate.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	quotas := make(chan struct{}, poolSize)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	wg.Add(len(sess.RecordIDs))
	clog.WithField("fetcherPoolSize", poolSize).Debug("spawning fetchers")
	for i, id := range sess.RecordIDs {
		go func(i int, id string) {
			defer wg.Done()
			// individual fetcher acquires quota itself so that the spawning loop never blocks
			select {
			case quotas <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-quotas }()
			sr, err := v.gate.fetch(ctx, oc, sess.OwnerID, id)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			results[i] = sr
		}(i, id)
	}
	wg.Wait()
	if firstErr == nil {
		// fetchers skipped by a cancelled caller leave their slots empty
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		clog.WithError(firstErr).Error("error fetching shared records")
		return nil, se.NewServiceFailure("failed to fetch shared records").WithCause(firstErr)
	}
	records := make([]*md.SharedRecord, 0, len(results))
	for _, sr := range results {
		if sr != nil {
			records = append(records, sr)
		}
	}
	return records, nil
}

// fetch returns nil without error when the record is to be dropped
func (g *Gate) fetch(ctx context.Context, oc *payload.Cipher, ownerID, id string) (*md.SharedRecord, error) {
	clog := log.WithField("recordID", id)
	r, err := g.Records.Get(ctx, id)
	if se.Is(err, se.ErrCodeNotFound) {
		clog.Debug("dropping missing shared record")
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if r.OwnerID != ownerID {
		clog.Warn("dropping shared record of another owner")
		return nil, nil
	}
	sr := &md.SharedRecord{RecordView: r.View(), Preview: md.PreviewNone}
	plain, err := oc.Decrypt(r.Payload)
	if err != nil {
		clog.WithError(err).Warn("shared record payload not decryptable")
		return sr, nil
	}
	sr.Payload, sr.Preview = &plain, md.PreviewKindOf(plain)
	return sr, nil
}
