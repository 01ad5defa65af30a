// Package prefs persists the local user's display profile between runs.
package prefs

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/jdowell/racetype/internal/race"
)

var (
	bucketName = []byte("profile")
	profileKey = []byte("me")
)

type Profile struct {
	Name          string `json:"name"`
	AvatarVariant string `json:"avatar_variant"`
	AvatarColor   string `json:"avatar_color"`
}

func defaultProfile() Profile {
	return Profile{
		Name:          "Racer",
		AvatarVariant: race.DefaultAvatar,
		AvatarColor:   race.SlotColors[0],
	}
}

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Load returns the saved profile, or the defaults when nothing has been saved
// yet or the stored value cannot be parsed.
func (s *Store) Load() Profile {
	p := defaultProfile()
	_ = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketName).Get(profileKey)
		if data == nil {
			return nil
		}
		var saved Profile
		if err := json.Unmarshal(data, &saved); err != nil {
			return nil
		}
		if saved.Name != "" {
			p.Name = saved.Name
		}
		if saved.AvatarVariant != "" {
			p.AvatarVariant = saved.AvatarVariant
		}
		if saved.AvatarColor != "" {
			p.AvatarColor = saved.AvatarColor
		}
		return nil
	})
	return p
}

func (s *Store) Save(p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(profileKey, data)
	})
}
