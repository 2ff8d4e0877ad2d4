package engine

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/blazelabs/lottery-engine/internal/ticket"
	"github.com/blazelabs/lottery-engine/pkg/common/constant"
	"github.com/blazelabs/lottery-engine/pkg/infra"
	"github.com/blazelabs/lottery-engine/pkg/kvstore"
)

// Store is the typed persistence layer of the engine. Keys are zero-padded so
// lexicographic listing returns rounds in id order.
type Store struct {
	kv infra.KVStore
}

func NewStore(kv infra.KVStore) *Store {
	return &Store{kv: kv}
}

func roundKey(id uint64) string {
	return fmt.Sprintf("%s/%020d", constant.KVPrefixRounds, id)
}

func ticketsKey(id uint64) string {
	return fmt.Sprintf("%s/%020d", constant.KVPrefixTickets, id)
}

func buyerKey(id uint64, buyer string) string {
	return fmt.Sprintf("%s/%020d/%s", constant.KVPrefixBuyers, id, buyer)
}

func upkeeperKey(addr string) string {
	return fmt.Sprintf("%s/%s", constant.KVPrefixUpkeepers, addr)
}

func altTokenKey(tokenID string) string {
	return fmt.Sprintf("%s/%s", constant.KVPrefixAltTokens, tokenID)
}

func (s *Store) SaveRound(r *Round) error {
	return s.kv.SetAny(roundKey(r.ID), r)
}

func (s *Store) GetRound(id uint64) (*Round, bool, error) {
	var r Round
	found, err := s.kv.GetAny(roundKey(id), &r)
	if err != nil || !found {
		return nil, false, err
	}
	return &r, true, nil
}

// CurrentRoundID returns 0 when no round has ever been activated.
func (s *Store) CurrentRoundID() (uint64, error) {
	raw, err := s.kv.Get(constant.KVKeyCurrentRound)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *Store) SetCurrentRoundID(id uint64) error {
	return s.kv.Set(constant.KVKeyCurrentRound, strconv.FormatUint(id, 10))
}

func (s *Store) SaveTickets(roundID uint64, tickets []ticket.Ticket) error {
	return s.kv.SetAny(ticketsKey(roundID), tickets)
}

func (s *Store) GetTickets(roundID uint64) ([]ticket.Ticket, error) {
	var tickets []ticket.Ticket
	if _, err := s.kv.GetAny(ticketsKey(roundID), &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) SaveBuyer(rec *BuyerRecord) error {
	return s.kv.SetAny(buyerKey(rec.Round, rec.Buyer), rec)
}

// GetBuyer returns an empty record when the buyer holds no tickets in the
// round yet.
func (s *Store) GetBuyer(roundID uint64, buyer string) (*BuyerRecord, error) {
	rec := &BuyerRecord{Buyer: buyer, Round: roundID}
	if _, err := s.kv.GetAny(buyerKey(roundID, buyer), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) SetUpkeeper(addr string, enabled bool) error {
	if !enabled {
		return s.kv.Delete(upkeeperKey(addr))
	}
	return s.kv.Set(upkeeperKey(addr), "enabled")
}

func (s *Store) IsUpkeeper(addr string) (bool, error) {
	_, err := s.kv.Get(upkeeperKey(addr))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) SaveAltToken(t *AltToken) error {
	return s.kv.SetAny(altTokenKey(t.TokenID), t)
}

func (s *Store) GetAltToken(tokenID string) (*AltToken, bool, error) {
	var t AltToken
	found, err := s.kv.GetAny(altTokenKey(tokenID), &t)
	if err != nil || !found {
		return nil, false, err
	}
	return &t, true, nil
}
