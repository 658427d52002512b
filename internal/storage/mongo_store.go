package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxel-stream/internal/vec"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig параметры подключения к MongoDB
type MongoConfig struct {
	URI        string // mongodb://localhost:27017
	Database   string // voxel
	Collection string // chunks
}

// MongoStore хранит блобы чанков документами {_id, seed, x, y, z, data}
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

type chunkDoc struct {
	ID        string    `bson:"_id"`
	Seed      int64     `bson:"seed"`
	X         int       `bson:"x"`
	Y         int       `bson:"y"`
	Z         int       `bson:"z"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore устанавливает соединение и создает индекс по сиду
func NewMongoStore(cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "voxel"
	}
	if cfg.Collection == "" {
		cfg.Collection = "chunks"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("не удалось проверить соединение с MongoDB: %w", err)
	}

	s := &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}

	seedIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "seed", Value: 1}},
		Options: options.Index().SetName("seed_idx"),
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, seedIdx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ошибка создания индекса: %w", err)
	}
	return s, nil
}

func (m *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.ctxTimeout)
}

func (m *MongoStore) Exists(ctx context.Context, seed int64, loc vec.Vec3) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": chunkKey(seed, loc)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("ошибка проверки чанка %v: %w", loc, err)
	}
	return n > 0, nil
}

func (m *MongoStore) Load(ctx context.Context, seed int64, loc vec.Vec3) ([]byte, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc chunkDoc
	err := m.collection.FindOne(ctx, bson.M{"_id": chunkKey(seed, loc)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки чанка %v: %w", loc, err)
	}
	return doc.Data, nil
}

func (m *MongoStore) Save(ctx context.Context, seed int64, loc vec.Vec3, blob []byte) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	doc := chunkDoc{
		ID:        chunkKey(seed, loc),
		Seed:      seed,
		X:         loc.X,
		Y:         loc.Y,
		Z:         loc.Z,
		Data:      blob,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ошибка сохранения чанка %v: %w", loc, err)
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, seed int64, loc vec.Vec3) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": chunkKey(seed, loc)}); err != nil {
		return fmt.Errorf("ошибка удаления чанка %v: %w", loc, err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
