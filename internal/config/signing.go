package config

import (
	"encoding/hex"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/c2link/helpers"
	"github.com/temoto/c2link/mavlink"
)

const DefaultCheckpointInterval = 10 * time.Second

type Signing struct {
	Enable bool `hcl:"enable"`
	// hex of 32 bytes, takes precedence over passphrase
	KeyHex        string `hcl:"key"`
	Passphrase    string `hcl:"passphrase"`
	LinkID        int    `hcl:"link_id"`
	RequireSigned bool   `hcl:"require_signed"`
	CheckpointSec int    `hcl:"checkpoint_sec"`
}

// Key returns nil when signing is disabled.
func (s *Signing) Key() ([]byte, error) {
	if !s.Enable {
		return nil, nil
	}
	switch {
	case s.KeyHex != "":
		key, err := hex.DecodeString(s.KeyHex)
		if err != nil {
			return nil, errors.NewNotValid(err, "signing key hex")
		}
		if len(key) != mavlink.KeySize {
			return nil, errors.NotValidf("signing key length=%d expected=%d", len(key), mavlink.KeySize)
		}
		return key, nil
	case s.Passphrase != "":
		key := mavlink.DeriveKey(s.Passphrase)
		return key[:], nil
	}
	return nil, errors.NotValidf("signing enabled without key or passphrase")
}

func (s *Signing) Link() (uint8, error) {
	if s.LinkID < 0 || s.LinkID > 0xff {
		return 0, errors.NotValidf("signing link_id=%d", s.LinkID)
	}
	return uint8(s.LinkID), nil
}

func (s *Signing) CheckpointInterval() time.Duration {
	return helpers.IntSecondDefault(s.CheckpointSec, DefaultCheckpointInterval)
}
