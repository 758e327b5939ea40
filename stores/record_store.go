package stores

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kivik/couchdb/v3"
	"github.com/go-kivik/kivik/v3"
	log "github.com/sirupsen/logrus"
	"healx.io/healx/common/logging"
	se "healx.io/healx/errors"
	md "healx.io/healx/models"
)

// RecordStore vends operations to manage medical record documents
type RecordStore interface {
	Create(ctx context.Context, r *md.Record) error
	// Get returns the record of given id regardless of its owner. Callers must check the owner.
	Get(ctx context.Context, id string) (*md.Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*md.Record, error)
	// Delete removes the record only if it belongs to ownerID
	Delete(ctx context.Context, ownerID, id string) error
	Close(ctx context.Context) error
}

type CouchConfig struct {
	DBAddr               string
	RecordsDBName        string
	DBUsername, DBPasswd string
	// fields below are optional
	RequestTimeout time.Duration
}

// CouchRecordStore implements RecordStore with CouchDB
type CouchRecordStore struct {
	client  *kivik.Client
	db      *kivik.DB
	dbName  string
	timeout time.Duration
}

const (
	ownerIndexDDoc = "owner-index"
	ownerIndexName = "owner"
	// page size of Mango queries; CouchDB returns at most 25 docs per _find by default
	findPageSize = 200
)

func NewCouchRecordStore(ctx context.Context, cfg *CouchConfig) (*CouchRecordStore, error) {
	client, err := kivik.New("couch", cfg.DBAddr)
	if err != nil {
		return nil, se.NewConfig("error creating CouchDB client").WithCause(err)
	}
	if cfg.DBUsername != "" {
		if err := client.Authenticate(ctx, couchdb.BasicAuth(cfg.DBUsername, cfg.DBPasswd)); err != nil {
			return nil, se.NewConfig("error setting up CouchDB auth").WithCause(err)
		}
	}
	db := client.DB(ctx, cfg.RecordsDBName)
	if err := db.Err(); err != nil {
		return nil, se.NewServiceFailure("error opening records DB").WithCause(err)
	}
	return &CouchRecordStore{
		client:  client,
		db:      db,
		dbName:  cfg.RecordsDBName,
		timeout: cfg.RequestTimeout,
	}, nil
}

// Init creates the records DB and the owner index if they are missing. It is safe to call on
// every start.
func (s *CouchRecordStore) Init(ctx context.Context) error {
	const errMsg = "error initializing records DB"
	clog := logging.WithFuncName().WithField("db", s.dbName)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	exists, err := s.client.DBExists(ctx, s.dbName)
	if err != nil {
		clog.WithError(err).Error("error checking existence of records DB")
		return se.NewServiceFailure(errMsg).WithCause(err)
	}
	if !exists {
		if err := s.client.CreateDB(ctx, s.dbName); err != nil && kivik.StatusCode(err) != http.StatusPreconditionFailed {
			clog.WithError(err).Error("error creating records DB")
			return se.NewServiceFailure(errMsg).WithCause(err)
		}
		clog.Info("created records DB")
	}
	index := map[string]interface{}{"fields": []string{"owner"}}
	if err := s.db.CreateIndex(ctx, ownerIndexDDoc, ownerIndexName, index); err != nil {
		clog.WithError(err).Error("error creating owner index")
		return se.NewServiceFailure(errMsg).WithCause(err)
	}
	return nil
}

func (s *CouchRecordStore) Create(ctx context.Context, r *md.Record) error {
	clog := logging.WithFuncName().WithFields(log.Fields{"recordID": r.ID, "ownerID": r.OwnerID})
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rev, err := s.db.Put(ctx, r.ID, r)
	if err != nil {
		clog.WithError(err).Error("error saving record to CouchDB")
		if kivik.StatusCode(err) == http.StatusConflict {
			return se.NewExisted(fmt.Sprintf("record %s already exists", r.ID)).WithCause(err)
		}
		return se.NewServiceFailure("failed to save record").WithCause(err)
	}
	r.Rev = rev
	return nil
}

func (s *CouchRecordStore) Get(ctx context.Context, id string) (*md.Record, error) {
	clog := logging.WithFuncName().WithField("recordID", id)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var r md.Record
	if err := s.db.Get(ctx, id).ScanDoc(&r); err != nil {
		if kivik.StatusCode(err) == http.StatusNotFound {
			return nil, se.NewNotFound(fmt.Sprintf("record %s not found", id))
		}
		clog.WithError(err).Error("error getting record from CouchDB")
		return nil, se.NewServiceFailure("error getting record").WithCause(err)
	}
	return &r, nil
}

// ListByOwner runs a Mango query on the owner field so that other users' records never leave
// the DB
func (s *CouchRecordStore) ListByOwner(ctx context.Context, ownerID string) ([]*md.Record, error) {
	const errMsg = "error listing records"
	clog := logging.WithFuncName().WithField("ownerID", ownerID)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	records := []*md.Record{}
	for skip := 0; ; skip += findPageSize {
		query := map[string]interface{}{
			"selector": map[string]interface{}{"owner": ownerID},
			"limit":    findPageSize,
			"skip":     skip,
		}
		rows, err := s.db.Find(ctx, query)
		if err != nil {
			clog.WithError(err).Error("error querying records by owner")
			return nil, se.NewServiceFailure(errMsg).WithCause(err)
		}
		n := 0
		for rows.Next() {
			var r md.Record
			if err := rows.ScanDoc(&r); err != nil {
				rows.Close()
				clog.WithError(err).Error("error scanning record document")
				return nil, se.NewServiceFailure(errMsg).WithCause(err)
			}
			records = append(records, &r)
			n++
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			clog.WithError(err).Error("error iterating records by owner")
			return nil, se.NewServiceFailure(errMsg).WithCause(err)
		}
		if n < findPageSize {
			break
		}
	}
	clog.WithField("count", len(records)).Debug("done listing records")
	return records, nil
}

func (s *CouchRecordStore) Delete(ctx context.Context, ownerID, id string) error {
	clog := logging.WithFuncName().WithFields(log.Fields{"recordID": id, "ownerID": ownerID})
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.OwnerID != ownerID {
		clog.Warn("refusing to delete record of another owner")
		return se.NewForbidden("record belongs to another user")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.db.Delete(ctx, id, r.Rev); err != nil {
		switch kivik.StatusCode(err) {
		case http.StatusNotFound:
			return se.NewNotFound(fmt.Sprintf("record %s not found", id))
		case http.StatusConflict:
			return se.NewServiceFailure("record was modified concurrently").WithCause(err)
		}
		clog.WithError(err).Error("error deleting record from CouchDB")
		return se.NewServiceFailure("failed to delete record").WithCause(err)
	}
	return nil
}

func (s *CouchRecordStore) Close(ctx context.Context) error {
	if err := s.client.Close(ctx); err != nil {
		return se.NewServiceFailure("failed closing CouchDB client").WithCause(err)
	}
	return nil
}

func (s *CouchRecordStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
