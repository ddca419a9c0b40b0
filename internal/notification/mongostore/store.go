// Package mongostore はMongoDBに通知を保存するストアを提供する。
// 既読状態の更新は版数を条件にしたFindOneAndUpdateで比較交換する。
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nao1215/notifyhub/internal/notification"
)

// collectionName は通知を保存するコレクション名。
const collectionName = "notifications"

// document はMongoDBに保存する通知のドキュメント。
type document struct {
	ID               string   `bson:"_id"`
	Iat              int64    `bson:"iat"`
	Tenant           string   `bson:"tenant"`
	Msg              string   `bson:"msg"`
	Mode             string   `bson:"mode"`
	Destinataries    []string `bson:"destinataries,omitempty"`
	Username         string   `bson:"username,omitempty"`
	ProfilesThatRead []string `bson:"profilesThatRead,omitempty"`
	ReadAt           *int64   `bson:"readAt,omitempty"`
	Version          int64    `bson:"version"`
}

// Store はMongoDBのコレクションを使うnotification.Store。
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	newID  func() string
	now    func() time.Time
}

// Open はMongoDBに接続し、インデックスを作成したStoreを返す。
func Open(ctx context.Context, uri, database string, logger logrus.FieldLogger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("MongoDBへの接続に失敗: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("MongoDBへの疎通確認に失敗: %w", err)
	}

	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"database":   database,
		"collection": collectionName,
	}).Info("MongoDBに接続しました")
	return s, nil
}

// New は接続済みのクライアントからStoreを生成する。
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// EnsureIndexes は一覧取得用のインデックスを作成する。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "iat", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "tenant", Value: 1}, {Key: "iat", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("インデックスの作成に失敗: %w", err)
	}
	return nil
}

// Close は接続を切断する。
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping はMongoDBへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Create は通知を作成する。
func (s *Store) Create(ctx context.Context, d notification.Draft) (notification.Notification, error) {
	doc, err := newDocument(s.newID(), notification.EpochMillis(s.now()), d)
	if err != nil {
		return notification.Notification{}, err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return notification.Notification{}, fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return doc.toNotification()
}

// Get はIDで通知を取得する。
func (s *Store) Get(ctx context.Context, id string) (notification.Notification, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notification.Notification{}, fmt.Errorf("%w: %s", notification.ErrNotFound, id)
	}
	if err != nil {
		return notification.Notification{}, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	return doc.toNotification()
}

// Find は条件に合う通知を作成日時の新しい順に返す。
func (s *Store) Find(ctx context.Context, f notification.Filter) ([]notification.Notification, error) {
	filter := bson.M{}
	if f.Tenant != "" {
		filter["tenant"] = f.Tenant
	}
	opts := options.Find().SetSort(bson.D{{Key: "iat", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("通知一覧の読み込みに失敗: %w", err)
	}

	notifications := make([]notification.Notification, 0, len(docs))
	for _, doc := range docs {
		n, err := doc.toNotification()
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// UpdateReadState は版数と宛先方式が一致するドキュメントだけを更新する。
func (s *Store) UpdateReadState(ctx context.Context, id string, version int64, next notification.Target) (notification.Notification, error) {
	set, err := readStateUpdate(next)
	if err != nil {
		return notification.Notification{}, err
	}
	filter := bson.M{"_id": id, "version": version, "mode": string(next.Mode())}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc document
	err = s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return notification.Notification{}, getErr
		}
		if current.Target.Mode() != next.Mode() {
			return notification.Notification{}, fmt.Errorf("%w: 通知 %s の宛先方式は %s です", notification.ErrInternal, id, current.Target.Mode())
		}
		return notification.Notification{}, fmt.Errorf("%w: 通知 %s", notification.ErrConflict, id)
	}
	if err != nil {
		return notification.Notification{}, fmt.Errorf("既読状態の更新に失敗: %w", err)
	}
	return doc.toNotification()
}

// newDocument は作成内容からドキュメントを組み立てる。
func newDocument(id string, createdAt time.Time, d notification.Draft) (document, error) {
	doc := document{
		ID:      id,
		Iat:     createdAt.UnixMilli(),
		Tenant:  d.Tenant,
		Msg:     d.Message,
		Version: 1,
	}
	switch t := d.Target.(type) {
	case notification.Broadcast:
		if len(t.Roles) == 0 {
			return document{}, fmt.Errorf("%w: 宛先ロールが空です", notification.ErrInvalidArgument)
		}
		doc.Mode = string(notification.ModeBroadcast)
		doc.Destinataries = t.Roles
	case notification.Direct:
		if t.Username == "" {
			return document{}, fmt.Errorf("%w: 宛先ユーザー名が空です", notification.ErrInvalidArgument)
		}
		doc.Mode = string(notification.ModeDirect)
		doc.Username = t.Username
	default:
		return document{}, fmt.Errorf("%w: 宛先が指定されていません", notification.ErrInvalidArgument)
	}
	return doc, nil
}

// readStateUpdate は既読状態を$set用のフィールドに変換する。
func readStateUpdate(next notification.Target) (bson.M, error) {
	switch t := next.(type) {
	case notification.Broadcast:
		readBy := t.ReadBy
		if readBy == nil {
			readBy = []string{}
		}
		return bson.M{"profilesThatRead": readBy}, nil
	case notification.Direct:
		if t.ReadAt.IsZero() {
			return bson.M{"readAt": nil}, nil
		}
		return bson.M{"readAt": t.ReadAt.UnixMilli()}, nil
	default:
		return nil, fmt.Errorf("%w: 未知の宛先方式 %T", notification.ErrInternal, next)
	}
}

// toNotification はドキュメントを通知に変換する。
func (d document) toNotification() (notification.Notification, error) {
	n := notification.Notification{
		ID:        d.ID,
		CreatedAt: time.UnixMilli(d.Iat).UTC(),
		Tenant:    d.Tenant,
		Message:   d.Msg,
		Version:   d.Version,
	}
	switch notification.Mode(d.Mode) {
	case notification.ModeBroadcast:
		n.Target = notification.Broadcast{Roles: d.Destinataries, ReadBy: d.ProfilesThatRead}
	case notification.ModeDirect:
		direct := notification.Direct{Username: d.Username}
		if d.ReadAt != nil {
			direct.ReadAt = time.UnixMilli(*d.ReadAt).UTC()
		}
		n.Target = direct
	default:
		return notification.Notification{}, fmt.Errorf("%w: 通知 %s の宛先方式 %q が不正です", notification.ErrInternal, d.ID, d.Mode)
	}
	return n, nil
}
