package gate

import (
	"context"
	"fmt"

	"github.com/segmentio/ksuid"
	"healx.io/healx/common/logging"
	se "healx.io/healx/errors"
	"healx.io/healx/listing"
	md "healx.io/healx/models"
)

// Issue creates a share session onto records of u. Every requested record must belong to u. The
// record ids are snapshotted in selection order.
func (g *Gate) Issue(ctx context.Context, u *md.User, req *listing.ShareRequest) (*md.ShareSession, error) {
	if u.Anonymous() {
		return nil, se.NewUnauthorized("login required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	clog := logging.WithFuncName().WithField("ownerID", u.ID)
	owned, err := g.Records.ListByOwner(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	mine := make(map[string]struct{}, len(owned))
	for _, r := range owned {
		mine[r.ID] = struct{}{}
	}
	ids := listing.NewSelection(req.RecordIDs...).IDs()
	for _, id := range ids {
		if _, ok := mine[id]; !ok {
			return nil, se.NewNotFound(fmt.Sprintf("record %s not found", id))
		}
	}
	hash, err := HashPIN(req.PIN)
	if err != nil {
		return nil, err
	}
	kid, err := ksuid.NewRandom()
	if err != nil {
		clog.WithError(err).Error("error generating share token")
		return nil, se.NewServiceFailure("error generating share link").WithCause(err)
	}
	now := g.now().UTC()
	sess := &md.ShareSession{
		Token:        kid.String(),
		PINHash:      hash,
		ExpiresAt:    now.Add(req.Expiry()),
		RecordIDs:    ids,
		OwnerID:      u.ID,
		CreationTime: now,
	}
	if err := g.Shares.Create(ctx, sess); err != nil {
		return nil, err
	}
	clog.WithField("recordCount", len(ids)).Info("issued share session")
	return sess, nil
}

// Revoke removes a share session of u and drops it from the cache
func (g *Gate) Revoke(ctx context.Context, u *md.User, token string) error {
	if u.Anonymous() {
		return se.NewUnauthorized("login required")
	}
	if err := g.Shares.Revoke(ctx, u.ID, token); err != nil {
		return err
	}
	g.Forget(token)
	return nil
}
