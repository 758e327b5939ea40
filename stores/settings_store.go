package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis"
	"healx.io/healx/common/logging"
	cst "healx.io/healx/constants"
	se "healx.io/healx/errors"
	md "healx.io/healx/models"
)

// SettingsStore keeps the per user patient list and per patient profile and health data. Values
// are JSON documents and the last write wins.
type SettingsStore interface {
	// Patients returns the patient labels of the user, which are ["Self"] until one is added
	Patients(ctx context.Context, email string) ([]string, error)
	AddPatient(ctx context.Context, email, patient string) ([]string, error)
	Profile(ctx context.Context, email, patient string) (*md.Profile, error)
	SaveProfile(ctx context.Context, email, patient string, p *md.Profile) error
	Health(ctx context.Context, email, patient string) (*md.Health, error)
	SaveHealth(ctx context.Context, email, patient string, h *md.Health) error
}

type RedisSettingsStore struct {
	DB *redis.Client
}

const (
	keyTmplPatients    = "%s_patients"
	keyTmplProfileData = "%s_profileData_%s"
	keyTmplHealthData  = "%s_healthData_%s"
)

func (s *RedisSettingsStore) Patients(ctx context.Context, email string) ([]string, error) {
	patients := []string{}
	found, err := s.load(ctx, fmt.Sprintf(keyTmplPatients, email), &patients)
	if err != nil {
		return nil, err
	}
	if !found || len(patients) == 0 {
		return []string{cst.PatientSelf}, nil
	}
	return patients, nil
}

// AddPatient appends the trimmed patient label to the list and returns the updated list
func (s *RedisSettingsStore) AddPatient(ctx context.Context, email, patient string) ([]string, error) {
	patient = strings.TrimSpace(patient)
	if patient == "" {
		return nil, se.NewBadInput("patient name must not be empty")
	}
	key := fmt.Sprintf(keyTmplPatients, email)
	var patients []string
	// optimistic lock on the list so that concurrent adds are not lost
	err := s.DB.WithContext(ctx).Watch(func(tx *redis.Tx) error {
		current := []string{}
		b, err := tx.Get(key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if err := json.Unmarshal(b, &current); err != nil {
				return err
			}
		}
		if len(current) == 0 {
			current = []string{cst.PatientSelf}
		}
		for _, p := range current {
			if p == patient {
				return se.NewExisted(fmt.Sprintf("patient %s already exists", patient))
			}
		}
		patients = append(current, patient)
		if b, err = json.Marshal(patients); err != nil {
			return err
		}
		_, err = tx.Pipelined(func(p redis.Pipeliner) error {
			p.Set(key, b, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if e, ok := err.(*se.Err); ok {
			return nil, e
		}
		logging.WithFuncName().WithError(err).WithField("email", email).Error("error saving patients to redis")
		return nil, se.NewServiceFailure("error adding patient").WithCause(err)
	}
	return patients, nil
}

func (s *RedisSettingsStore) Profile(ctx context.Context, email, patient string) (*md.Profile, error) {
	p := &md.Profile{}
	if _, err := s.load(ctx, fmt.Sprintf(keyTmplProfileData, email, patient), p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *RedisSettingsStore) SaveProfile(ctx context.Context, email, patient string, p *md.Profile) error {
	return s.save(ctx, fmt.Sprintf(keyTmplProfileData, email, patient), p)
}

func (s *RedisSettingsStore) Health(ctx context.Context, email, patient string) (*md.Health, error) {
	h := &md.Health{}
	if _, err := s.load(ctx, fmt.Sprintf(keyTmplHealthData, email, patient), h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *RedisSettingsStore) SaveHealth(ctx context.Context, email, patient string, h *md.Health) error {
	return s.save(ctx, fmt.Sprintf(keyTmplHealthData, email, patient), h)
}

func (s *RedisSettingsStore) load(ctx context.Context, key string, v interface{}) (bool, error) {
	clog := logging.WithFuncName().WithField("key", key)
	b, err := s.DB.WithContext(ctx).Get(key).Bytes()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		clog.WithError(err).Error("error getting settings from redis")
		return false, se.NewServiceFailure("error loading settings").WithCause(err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		clog.WithError(err).Error("error unmarshalling settings")
		return false, se.NewServiceFailure("error loading settings").WithCause(err)
	}
	return true, nil
}

func (s *RedisSettingsStore) save(ctx context.Context, key string, v interface{}) error {
	clog := logging.WithFuncName().WithField("key", key)
	b, err := json.Marshal(v)
	if err != nil {
		return se.NewServiceFailure("error marshalling settings").WithCause(err)
	}
	if err := s.DB.WithContext(ctx).Set(key, b, 0).Err(); err != nil {
		clog.WithError(err).Error("error saving settings to redis")
		return se.NewServiceFailure("error saving settings").WithCause(err)
	}
	return nil
}
