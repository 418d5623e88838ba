package chat

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
)

// Key layout:
//
//	conv:<id>               conversation JSON
//	tseq:<conv>             last turn sequence number (uint64, big endian)
//	turn:<conv>:<seq>       turn JSON, seq zero padded so keys sort in insert order
//	audit:<unixnano>:<id>   audit entry JSON
const (
	convPrefix  = "conv:"
	seqPrefix   = "tseq:"
	turnPrefix  = "turn:"
	auditPrefix = "audit:"
)

// BadgerOptions configures the BadgerDB store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string
	// InMemory runs BadgerDB without disk persistence.
	InMemory bool
	Logger   zerolog.Logger
}

// BadgerStore persists conversations in an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("chat: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{log: opts.Logger.With().Str("component", "badger").Logger()})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *BadgerStore) CreateConversation(_ context.Context, userID, toolID, title string) (string, error) {
	if toolID == "" {
		return "", ErrToolRequired
	}
	now := s.now()
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		ToolID:    toolID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, convPrefix+conv.ID, conv)
	})
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return conv.ID, nil
}

func (s *BadgerStore) GetConversation(_ context.Context, conversationID string) (chat.Conversation, error) {
	var conv chat.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, convPrefix+conversationID, &conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

func (s *BadgerStore) ListConversations(_ context.Context, userID string) ([]chat.Conversation, error) {
	out := make([]chat.Conversation, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, convPrefix, func(val []byte) error {
			var conv chat.Conversation
			if err := json.Unmarshal(val, &conv); err != nil {
				return err
			}
			if conv.UserID == userID {
				out = append(out, conv)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	sortConversations(out)
	return out, nil
}

func (s *BadgerStore) TouchConversation(_ context.Context, conversationID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var conv chat.Conversation
		if err := getJSON(txn, convPrefix+conversationID, &conv); err != nil {
			return err
		}
		conv.UpdatedAt = s.now()
		return setJSON(txn, convPrefix+conversationID, conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrConversationNotFound
	}
	return err
}

func (s *BadgerStore) AppendTurn(_ context.Context, conversationID string, turn chat.Turn) (chat.Turn, error) {
	turn.ID = uuid.NewString()
	turn.ConversationID = conversationID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(convPrefix + conversationID)); err != nil {
			return err
		}
		seq, err := nextSeq(txn, seqPrefix+conversationID)
		if err != nil {
			return err
		}
		return setJSON(txn, turnKey(conversationID, seq), turn)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Turn{}, ErrConversationNotFound
	}
	if err != nil {
		return chat.Turn{}, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}

func (s *BadgerStore) ListTurns(_ context.Context, conversationID string) ([]chat.Turn, error) {
	turns := make([]chat.Turn, 0, 16)
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(convPrefix + conversationID)); err != nil {
			return err
		}
		return scan(txn, turnPrefix+conversationID+":", func(val []byte) error {
			var turn chat.Turn
			if err := json.Unmarshal(val, &turn); err != nil {
				return err
			}
			turns = append(turns, turn)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	sortTurns(turns)
	return turns, nil
}

func (s *BadgerStore) RecordAudit(_ context.Context, entry chat.AuditEntry) error {
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	key := fmt.Sprintf("%s%020d:%s", auditPrefix, entry.CreatedAt.UnixNano(), entry.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key, entry)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func turnKey(conversationID string, seq uint64) string {
	return fmt.Sprintf("%s%s:%020d", turnPrefix, conversationID, seq)
}

func nextSeq(txn *badger.Txn, key string) (uint64, error) {
	var seq uint64
	item, err := txn.Get([]byte(key))
	switch {
	case err == nil:
		if err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt sequence %s", key)
			}
			seq = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		return 0, err
	}

	seq++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return seq, txn.Set([]byte(key), buf)
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func scan(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = []byte(prefix)
	it := txn.NewIterator(iterOpts)
	defer it.Close()

	for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

// badgerLogger routes badger's warnings and errors to zerolog and drops
// its info and debug chatter.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	l.log.Error().Msgf(strings.TrimSpace(f), v...)
}

func (l badgerLogger) Warningf(f string, v ...any) {
	l.log.Warn().Msgf(strings.TrimSpace(f), v...)
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}

var _ Store = (*BadgerStore)(nil)
