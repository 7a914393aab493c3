package intent

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/hyperbridge-core/pkg/kvstore"
)

// sessionKeyPrefix namespaces session-key entries within the shared KV store, per §6's
// persisted KV layout note ("session keys under commitment").
const sessionKeyPrefix = "intents::session::"

type sessionKeyRecord struct {
	PrivateKeyHex string `json:"private_key_hex"`
}

// SessionStore persists a SessionKey keyed by the order commitment it was minted for, so
// a later process (the executor, or a retry after a restart) can recover the key needed
// to sign SelectSolver without re-deriving it.
type SessionStore struct {
	kv kvstore.KV
}

// NewSessionStore wraps kv for session-key bookkeeping.
func NewSessionStore(kv kvstore.KV) *SessionStore {
	return &SessionStore{kv: kv}
}

func sessionKey(commitment []byte) []byte {
	return append([]byte(sessionKeyPrefix), commitment...)
}

// Put persists session under commitment.
func (s *SessionStore) Put(commitment []byte, session SessionKey) error {
	record := sessionKeyRecord{PrivateKeyHex: hex.EncodeToString(crypto.FromECDSA(session.PrivateKey))}
	if err := kvstore.PutJSON(s.kv, sessionKey(commitment), record); err != nil {
		return fmt.Errorf("intent: persist session key for %x: %w", commitment, err)
	}
	return nil
}

// Get recovers the session key persisted under commitment, or (SessionKey{}, false, nil)
// if none was stored.
func (s *SessionStore) Get(commitment []byte) (SessionKey, bool, error) {
	var record sessionKeyRecord
	ok, err := kvstore.GetJSON(s.kv, sessionKey(commitment), &record)
	if err != nil || !ok {
		return SessionKey{}, false, err
	}
	raw, err := hex.DecodeString(record.PrivateKeyHex)
	if err != nil {
		return SessionKey{}, false, fmt.Errorf("intent: decode session key for %x: %w", commitment, err)
	}
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return SessionKey{}, false, fmt.Errorf("intent: parse session key for %x: %w", commitment, err)
	}
	return SessionKey{PrivateKey: priv, Address: crypto.PubkeyToAddress(priv.PublicKey)}, true, nil
}

// Delete removes the session key persisted under commitment, once the order it belongs
// to has reached a terminal state.
func (s *SessionStore) Delete(commitment []byte) error {
	if err := s.kv.Delete(sessionKey(commitment)); err != nil {
		return fmt.Errorf("intent: delete session key for %x: %w", commitment, err)
	}
	return nil
}
