// Package livekit connects the voice session to a LiveKit room and mints
// LiveKit access tokens.
package livekit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
)

// DefaultTokenTTL is the validity of minted tokens when none is configured.
const DefaultTokenTTL = 15 * time.Minute

// RoomPrefix prefixes the names of rooms created for a correlation id.
const RoomPrefix = "voice-"

// Minter signs LiveKit access tokens with an API key and secret.
type Minter struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

// NewMinter creates a minter. A non-positive ttl falls back to DefaultTokenTTL.
func NewMinter(apiKey, apiSecret string, ttl time.Duration) (*Minter, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("livekit api key and secret are required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Minter{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl}, nil
}

// Grant describes the participant a token is minted for.
type Grant struct {
	Room     string
	Identity string
	Name     string
	Language string
}

// Mint creates a room-join token for g.
func (m *Minter) Mint(g Grant) (string, error) {
	if g.Room == "" || g.Identity == "" {
		return "", fmt.Errorf("room and identity are required")
	}

	canPublish := true
	canSubscribe := true
	canPublishData := true

	at := auth.NewAccessToken(m.apiKey, m.apiSecret)
	at.AddGrant(&auth.VideoGrant{
		RoomJoin:       true,
		Room:           g.Room,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}).
		SetIdentity(g.Identity).
		SetValidFor(m.ttl)

	if g.Name != "" {
		at.SetName(g.Name)
	}
	if g.Language != "" {
		metadata, err := json.Marshal(map[string]string{"language": g.Language})
		if err != nil {
			return "", err
		}
		at.SetMetadata(string(metadata))
	}

	return at.ToJWT()
}

// MintForCorrelation mints a token for the room of a correlation id with a
// fresh random identity.
func (m *Minter) MintForCorrelation(correlationID, language string) (string, error) {
	return m.Mint(Grant{
		Room:     RoomPrefix + correlationID,
		Identity: uuid.NewString(),
		Language: language,
	})
}

// IssueToken mints a token for a new room. It lets the minter serve the
// cloud mode when the service holds the LiveKit credentials itself.
func (m *Minter) IssueToken(context.Context) (string, error) {
	return m.MintForCorrelation(uuid.NewString(), "")
}
