// Package badger stores messages and profiles in BadgerDB.
//
// Key layout:
//
//	msg:{id}                              -> JSON message
//	conv:{hex(conversation)}:{unixnano019}:{id} -> empty, time-ordered index
//
// The conversation id is hex encoded because user ids may contain ':', which
// would let one conversation's prefix match another's keys.
//	profile:{userID}                      -> JSON profile
package badger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

type MessageRepository struct {
	db *badger.DB
}

func NewMessageRepository(db *badger.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func messageKey(id domain.MessageID) []byte {
	return []byte("msg:" + id.String())
}

func conversationPrefix(id domain.ConversationID) []byte {
	return []byte("conv:" + hex.EncodeToString([]byte(id)) + ":")
}

// indexKey pads the timestamp to 19 digits so lexicographic order is chronological.
// The message id breaks ties between messages created in the same nanosecond.
func indexKey(msg domain.Message) []byte {
	return fmt.Appendf(conversationPrefix(msg.ConversationID), "%019d:%s", msg.CreatedAt.UnixNano(), msg.ID)
}

func (r *MessageRepository) Save(ctx context.Context, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(messageKey(msg.ID)); err == nil {
			return fmt.Errorf("%w: message %s already exists", domain.ErrValidation, msg.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(messageKey(msg.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(msg), nil)
	})
}

func (r *MessageRepository) Get(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	var msg domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		msg, err = getMessage(txn, id)
		return err
	})
	return msg, err
}

func (r *MessageRepository) Update(ctx context.Context, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(messageKey(msg.ID)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: message %s", domain.ErrNotFound, msg.ID)
		} else if err != nil {
			return err
		}
		return txn.Set(messageKey(msg.ID), data)
	})
}

// History walks the conversation index backwards from the newest entry.
func (r *MessageRepository) History(ctx context.Context, conversationID domain.ConversationID, limit int) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	if limit <= 0 {
		return messages, nil
	}
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := conversationPrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			msg, err := getMessage(txn, idFromIndexKey(it.Item().Key()))
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Unread lists unread messages addressed to readerID, oldest first.
func (r *MessageRepository) Unread(ctx context.Context, conversationID domain.ConversationID, readerID domain.UserID) ([]domain.MessageID, error) {
	var ids []domain.MessageID
	err := r.db.View(func(txn *badger.Txn) error {
		pending, err := unreadFor(txn, conversationID, readerID)
		if err != nil {
			return err
		}
		for _, msg := range pending {
			ids = append(ids, msg.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		log.Debug().Str("conversation_id", conversationID.String()).Int("count", len(ids)).Msg("Unread messages found")
	}
	return ids, nil
}

// unreadFor collects unread messages addressed to readerID.
func unreadFor(txn *badger.Txn, conversationID domain.ConversationID, readerID domain.UserID) ([]domain.Message, error) {
	prefix := conversationPrefix(conversationID)
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	var unread []domain.Message
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		msg, err := getMessage(txn, idFromIndexKey(it.Item().Key()))
		if err != nil {
			return nil, err
		}
		if msg.ReceiverID == readerID && !msg.IsRead {
			unread = append(unread, msg)
		}
	}
	return unread, nil
}

func idFromIndexKey(key []byte) domain.MessageID {
	return domain.MessageID(key[bytes.LastIndexByte(key, ':')+1:])
}

func getMessage(txn *badger.Txn, id domain.MessageID) (domain.Message, error) {
	var msg domain.Message
	item, err := txn.Get(messageKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return msg, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return msg, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &msg)
	})
	return msg, err
}
