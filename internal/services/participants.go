package services

import (
	"context"
	"errors"
	"fmt"
)

type ParticipantKind string

const (
	ParticipantUser    ParticipantKind = "user"
	ParticipantSystem  ParticipantKind = "system"
	ParticipantAccount ParticipantKind = "account"
)

// Participant names a transaction party by user, system account name or
// account id instead of by raw account id.
type Participant struct {
	Kind      ParticipantKind `json:"kind"`
	UserID    *int64          `json:"userId,omitempty"`
	Name      string          `json:"name,omitempty"`
	AccountID *int64          `json:"accountId,omitempty"`
	Amount    int64           `json:"amount"`
}

var ErrInvalidParticipant = errors.New("invalid participant")

func (p Participant) Validate() error {
	switch p.Kind {
	case ParticipantUser:
		if p.UserID == nil {
			return fmt.Errorf("%w: user participant requires userId", ErrInvalidParticipant)
		}
	case ParticipantSystem:
		if p.Name == "" {
			return fmt.Errorf("%w: system participant requires name", ErrInvalidParticipant)
		}
	case ParticipantAccount:
		if p.AccountID == nil {
			return fmt.Errorf("%w: account participant requires accountId", ErrInvalidParticipant)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidParticipant, p.Kind)
	}
	return nil
}

// ResolveParticipants maps participants onto ledger entries. The returned
// map links each resolved account id back to the participant that named it.
func (s *AccountService) ResolveParticipants(ctx context.Context, participants []Participant) ([]Entry, map[int64]Participant, error) {
	entries := make([]Entry, 0, len(participants))
	byAccount := make(map[int64]Participant, len(participants))
	for i, participant := range participants {
		if err := participant.Validate(); err != nil {
			return nil, nil, fmt.Errorf("participant %d: %w", i, err)
		}
		accountID, err := s.resolveParticipant(ctx, participant)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, Entry{AccountID: accountID, Amount: participant.Amount})
		byAccount[accountID] = participant
	}
	return entries, byAccount, nil
}

func (s *AccountService) resolveParticipant(ctx context.Context, participant Participant) (int64, error) {
	switch participant.Kind {
	case ParticipantUser:
		account, err := s.FindUserAccountByUserID(ctx, *participant.UserID)
		if err != nil {
			return 0, fmt.Errorf("user %d does not have an account: %w", *participant.UserID, err)
		}
		return account.ID, nil
	case ParticipantSystem:
		account, err := s.FindSystemAccountByName(ctx, participant.Name)
		if err != nil {
			return 0, fmt.Errorf("system account %q: %w", participant.Name, err)
		}
		return account.ID, nil
	default:
		account, err := s.FindAccountByID(ctx, *participant.AccountID)
		if err != nil {
			return 0, fmt.Errorf("account %d: %w", *participant.AccountID, err)
		}
		return account.ID, nil
	}
}
